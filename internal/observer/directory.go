package observer

import (
	"slices"
	"sync"

	"github.com/1broseidon/a11yd/internal/security"
)

// Package is an installed package as configured.
type Package struct {
	Name string `yaml:"name" json:"name"`
	UID  int    `yaml:"uid" json:"uid"`
	// Widgets lists packages whose widgets this package hosts.
	Widgets []string `yaml:"widgets,omitempty" json:"widgets,omitempty"`
}

// Directory is a static package and session directory built from
// configuration. It implements security.PackageDirectory and
// security.SessionDirectory and can be swapped wholesale on reload.
type Directory struct {
	mu       sync.RWMutex
	packages []Package
	profiles map[int]int
	cross    map[int]bool
}

var (
	_ security.PackageDirectory = (*Directory)(nil)
	_ security.SessionDirectory = (*Directory)(nil)
)

// NewDirectory creates a directory.
func NewDirectory(packages []Package, profiles map[int]int, crossSessionUIDs []int) *Directory {
	d := &Directory{}
	d.Update(packages, profiles, crossSessionUIDs)
	return d
}

// Update replaces the directory contents.
func (d *Directory) Update(packages []Package, profiles map[int]int, crossSessionUIDs []int) {
	cross := make(map[int]bool, len(crossSessionUIDs))
	for _, uid := range crossSessionUIDs {
		cross[uid] = true
	}
	prof := make(map[int]int, len(profiles))
	for k, v := range profiles {
		prof[k] = v
	}

	d.mu.Lock()
	d.packages = slices.Clone(packages)
	d.profiles = prof
	d.cross = cross
	d.mu.Unlock()
}

func (d *Directory) PackageUID(pkg string, session int) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.packages {
		if p.Name == pkg {
			return security.UIDFor(session, p.UID%security.PerSessionRange), true
		}
	}
	return 0, false
}

// PackagesForUID returns packages whose app id matches uid, in configuration
// order.
func (d *Directory) PackagesForUID(uid int) []string {
	appID := uid % security.PerSessionRange
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for _, p := range d.packages {
		if p.UID%security.PerSessionRange == appID {
			out = append(out, p.Name)
		}
	}
	return out
}

func (d *Directory) HostedWidgetPackages(uid int) []string {
	appID := uid % security.PerSessionRange
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for _, p := range d.packages {
		if p.UID%security.PerSessionRange != appID {
			continue
		}
		for _, w := range p.Widgets {
			if !slices.Contains(out, w) {
				out = append(out, w)
			}
		}
	}
	return out
}

func (d *Directory) ProfileParent(session int) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	parent, ok := d.profiles[session]
	return parent, ok
}

func (d *Directory) HasCrossSessionPermission(caller security.Identity) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cross[caller.UID]
}
