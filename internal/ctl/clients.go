package ctl

import (
	"github.com/etwm/sntrack/internal/log"
	"github.com/jezek/xgb/xproto"
	"golang.org/x/exp/slices"
)

// syncClients diffs the window manager's client list against the known
// clients, managing new windows and unmanaging vanished ones.
func (c *Controller) syncClients() {
	list, err := c.x.ClientList()
	if err != nil {
		log.Error("Failed to get client list: %s", err)
		return
	}
	slices.Sort(list)
	added, removed := diffSortedWindows(c.clients, list)
	c.clients = list
	for _, win := range removed {
		log.Verbose("Client 0x%x unmanaged", win)
		c.tracker.Unmanage(win)
	}
	for _, win := range added {
		c.manage(win)
	}
}

// manage starts tracking a newly managed window.
func (c *Controller) manage(win xproto.Window) {
	log.Verbose("Client 0x%x managed", win)
	if err := c.x.WatchWindow(win); err != nil {
		log.Debug("Failed to watch 0x%x: %s", win, err)
	}
	info, err := c.x.WindowInfo(win)
	if err != nil {
		log.Debug("Failed to read 0x%x: %s", win, err)
		return
	}
	c.tracker.Manage(info)
}

// removeClient forgets a destroyed window, if it was managed.
func (c *Controller) removeClient(win xproto.Window) {
	idx := slices.Index(c.clients, win)
	if idx < 0 {
		return
	}
	c.clients = slices.Delete(c.clients, idx, idx+1)
	c.tracker.Unmanage(win)
}

func (c *Controller) isClient(win xproto.Window) bool {
	return slices.Contains(c.clients, win)
}

// diffSortedWindows returns the windows only present in b (added) and those
// only present in a (removed). Both inputs must be sorted.
func diffSortedWindows(a, b []xproto.Window) (added, removed []xproto.Window) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case a[i] < b[j]:
			removed = append(removed, a[i])
			i++
		default:
			added = append(added, b[j])
			j++
		}
	}
	removed = append(removed, a[i:]...)
	added = append(added, b[j:]...)
	return added, removed
}
