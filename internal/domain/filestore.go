package domain

import "strings"

// DatabasePlaceholder is substituted with the database name in candidate
// templates.
const DatabasePlaceholder = "{db}"

// FilestoreCandidate is one conventional filestore location.
type FilestoreCandidate struct {
	Template string
	// Platforms lists GOOS values the candidate applies to. Empty means all.
	Platforms []string
}

func (c FilestoreCandidate) NeedsDatabase() bool {
	return strings.Contains(c.Template, DatabasePlaceholder)
}

func (c FilestoreCandidate) AppliesTo(goos string) bool {
	if len(c.Platforms) == 0 {
		return true
	}
	for _, p := range c.Platforms {
		if p == goos {
			return true
		}
	}
	return false
}

func (c FilestoreCandidate) Path(database string) string {
	return strings.ReplaceAll(c.Template, DatabasePlaceholder, database)
}

var unixLike = []string{"linux", "darwin", "freebsd", "openbsd", "netbsd"}

// DefaultFilestoreCandidates returns the conventional locations in probe
// order.
func DefaultFilestoreCandidates() []FilestoreCandidate {
	return []FilestoreCandidate{
		{Template: "/opt/odoo/data/filestore/{db}", Platforms: unixLike},
		{Template: "/var/lib/odoo/filestore/{db}", Platforms: unixLike},
		{Template: "/usr/local/var/odoo/filestore/{db}", Platforms: unixLike},
		{Template: "/home/odoo/data/filestore/{db}", Platforms: unixLike},
		{Template: "/opt/odoo/filestore/{db}", Platforms: unixLike},
		{Template: "~/.local/share/Odoo/filestore/{db}", Platforms: unixLike},
		{Template: "./filestore/{db}"},
		{Template: "../filestore/{db}"},
		{Template: "./data/filestore/{db}"},
		{Template: "../data/filestore/{db}"},
		{Template: `C:\Program Files\Odoo\data\filestore\{db}`, Platforms: []string{"windows"}},
		{Template: `C:\Odoo\data\filestore\{db}`, Platforms: []string{"windows"}},
		{Template: `C:\odoo\filestore\{db}`, Platforms: []string{"windows"}},
	}
}

// DefaultOdooConfigFiles lists configuration files that may carry a
// data_dir option, in probe order.
func DefaultOdooConfigFiles() []string {
	return []string{
		"~/.odoorc",
		"~/.openerp_serverrc",
		"/etc/odoo/odoo.conf",
		"/etc/odoo.conf",
		"/etc/odoo/openerp-server.conf",
	}
}
