package toggl

// Directory maps project and client ids to their names for one run. Live entries only carry a
// project id, so the executor resolves names through it.
type Directory struct {
	projects map[int64]Project
	clients  map[int64]TogglClient
}

func NewDirectory() *Directory {
	return &Directory{
		projects: make(map[int64]Project),
		clients:  make(map[int64]TogglClient),
	}
}

func (d *Directory) AddProjects(projects []Project) {
	for _, p := range projects {
		d.projects[p.ID] = p
	}
}

func (d *Directory) AddClients(clients []TogglClient) {
	for _, c := range clients {
		d.clients[c.ID] = c
	}
}

func (d *Directory) Project(id int64) (Project, bool) {
	p, ok := d.projects[id]
	return p, ok
}

func (d *Directory) Client(id int64) (TogglClient, bool) {
	c, ok := d.clients[id]
	return c, ok
}

func (d *Directory) Len() (projects, clients int) {
	return len(d.projects), len(d.clients)
}
