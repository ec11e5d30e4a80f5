package app

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voxmesh/voxmesh/internal/call"
	"github.com/voxmesh/voxmesh/internal/chat"
	"github.com/voxmesh/voxmesh/internal/config"
)

// watchConfig reloads the profile section when the config file changes
// and re-asserts presence with the new label and avatar. Watches the
// directory, not the file: editors replace files on save and a file
// watch would die with the old inode.
func watchConfig(cfgPath string, c *call.Call, ch *chat.Manager) func() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("APP: config watch: %v", err)
		return func() {}
	}
	if err := w.Add(filepath.Dir(cfgPath)); err != nil {
		log.Printf("APP: config watch: %v", err)
		w.Close()
		return func() {}
	}

	go func() {
		var last time.Time
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != cfgPath || !ev.Op.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				// Editors fire several events per save.
				if time.Since(last) < 500*time.Millisecond {
					continue
				}
				last = time.Now()

				cfg, err := config.Load(cfgPath)
				if err != nil {
					log.Printf("APP: config reload: %v", err)
					continue
				}
				log.Printf("APP: config reloaded, profile %q", cfg.Profile.Label)
				c.UpdateProfile(cfg.Profile.Label, cfg.Profile.Avatar)
				ch.SetLabel(cfg.Profile.Label)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("APP: config watch: %v", err)
			}
		}
	}()

	return func() { w.Close() }
}
