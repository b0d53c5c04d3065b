package specification

import (
	"sort"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
)

// NewDocument returns an empty document for version. An empty version selects 2.6.0.
func NewDocument(version string, info Info) *Document {
	if version == "" {
		version = Version260
	}
	return &Document{
		AsyncAPI:           version,
		DefaultContentType: "application/json",
		Info:               info,
		Channels:           map[string]Channel{},
	}
}

// AddServer registers a named server entry.
func (d *Document) AddServer(name string, server Server) {
	if d.Servers == nil {
		d.Servers = map[string]Server{}
	}
	d.Servers[name] = server
}

// AddChannels merges channels into the document. A channel name that is
// already present aborts the merge with a SetupError wrapping ErrDuplicateChannel;
// channels added before the collision stay in place.
func (d *Document) AddChannels(channels map[string]Channel) error {
	if d.Channels == nil {
		d.Channels = map[string]Channel{}
	}
	for _, name := range sortedKeys(channels) {
		if _, exists := d.Channels[name]; exists {
			return errspkg.NewSetupError("channel "+name, errspkg.ErrDuplicateChannel)
		}
		d.Channels[name] = channels[name]
	}
	return nil
}

// ChannelNames returns the registered channel names in sorted order.
func (d *Document) ChannelNames() []string {
	return sortedKeys(d.Channels)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
