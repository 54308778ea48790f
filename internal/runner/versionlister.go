package runner

import (
	"bufio"
	"context"
	"encoding/json"

	"github.com/mmizutani/wandbox/internal/config"
	"github.com/mmizutani/wandbox/internal/procpipes"
	"github.com/mmizutani/wandbox/internal/protocol"
	"github.com/mmizutani/wandbox/internal/versioncache"
)

// versionEntry is one compiler's row in the VersionResult payload.
type versionEntry struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display-name"`
	Version     string   `json:"version"`
	Switches    []string `json:"switches,omitempty"`
}

// VersionLister enumerates the configured compiler catalogue, running
// each displayable compiler's version_command once and aggregating the
// results. A successful build is memoized through Cache.
type VersionLister struct {
	Compilers map[string]config.CompilerProfile
	Cache     versioncache.Cache
}

// List returns the aggregate VersionResult payload, rebuilding it only
// if no cached payload was found.
func (vl *VersionLister) List(ctx context.Context) ([]byte, error) {
	if payload, ok := vl.Cache.Get(ctx); ok {
		return payload, nil
	}

	entries := []versionEntry{}
	for _, c := range vl.Compilers {
		if !c.Displayable || len(c.VersionCommand) == 0 {
			continue
		}
		version, ok := runVersionCommand(ctx, c.VersionCommand)
		if !ok {
			continue
		}
		entries = append(entries, versionEntry{
			Name:        c.Name,
			DisplayName: c.DisplayName,
			Version:     version,
			Switches:    c.Switches,
		})
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}

	vl.Cache.Set(ctx, payload)
	return payload, nil
}

// SendResult writes the VersionResult frame through mux.
func (vl *VersionLister) SendResult(ctx context.Context, mux *protocol.WriteMux) error {
	payload, err := vl.List(ctx)
	if err != nil {
		return err
	}
	return mux.SubmitSync("VersionResult", payload)
}

func runVersionCommand(ctx context.Context, argv []string) (string, bool) {
	child, err := procpipes.Spawn(ctx, "/", argv)
	if err != nil {
		return "", false
	}
	defer child.Stdin.Close()

	scanner := bufio.NewScanner(child.Stdout)
	var firstLine string
	if scanner.Scan() {
		firstLine = scanner.Text()
	}

	<-child.Done()
	exitCode, signalName := child.Result()
	if signalName != "" || exitCode != 0 {
		return "", false
	}
	return firstLine, true
}
