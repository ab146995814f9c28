package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/puppets/internal/runtime/bridge"
	"github.com/drblury/puppets/internal/runtime/config"
	"github.com/drblury/puppets/internal/runtime/jsoncodec"
	"github.com/drblury/puppets/internal/runtime/lifecycle"
)

// PuppetInfo is the inspector view of a puppet.
type PuppetInfo struct {
	Name    string          `json:"name"`
	Channel string          `json:"channel"`
	State   lifecycle.State `json:"state"`
	Flags   lifecycle.Flags `json:"flags"`
	Pieces  []string        `json:"pieces"`
}

// ChannelInfo is the inspector view of a channel.
type ChannelInfo struct {
	Name     string   `json:"name"`
	Events   []string `json:"events"`
	Commands []string `json:"commands"`
	Requests []string `json:"requests"`
}

// BridgeInfo is the inspector view of a bridge.
type BridgeInfo struct {
	Channel string       `json:"channel"`
	Topic   string       `json:"topic"`
	NodeID  string       `json:"node_id"`
	Stats   bridge.Stats `json:"stats"`
}

// PuppetInfos describes every puppet, sorted by name.
func (a *Application) PuppetInfos() []PuppetInfo {
	names := a.Puppets()
	infos := make([]PuppetInfo, 0, len(names))
	for _, name := range names {
		p, ok := a.Lookup(name)
		if !ok {
			continue
		}
		infos = append(infos, PuppetInfo{
			Name:    p.Name(),
			Channel: p.ChannelName(),
			State:   p.State(),
			Flags:   p.Flags(),
			Pieces:  p.PieceNames(),
		})
	}
	return infos
}

// ChannelInfos describes every channel of the registry, sorted by name.
func (a *Application) ChannelInfos() []ChannelInfo {
	names := a.registry.Names()
	infos := make([]ChannelInfo, 0, len(names))
	for _, name := range names {
		ch, ok := a.registry.Lookup(name)
		if !ok {
			continue
		}
		infos = append(infos, ChannelInfo{
			Name:     name,
			Events:   ch.Vent.Events(),
			Commands: ch.Commands.Names(),
			Requests: ch.Reqres.Names(),
		})
	}
	return infos
}

// BridgeInfos describes every bridge.
func (a *Application) BridgeInfos() []BridgeInfo {
	bridges := a.Bridges()
	infos := make([]BridgeInfo, 0, len(bridges))
	for _, b := range bridges {
		infos = append(infos, BridgeInfo{
			Channel: b.Channel().Name(),
			Topic:   b.Topic(),
			NodeID:  b.NodeID(),
			Stats:   b.Stats(),
		})
	}
	return infos
}

// InspectorHandler serves the read-only inspector API.
func (a *Application) InspectorHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/puppets", func(w http.ResponseWriter, r *http.Request) {
		a.writeInspectorJSON(w, r, a.PuppetInfos())
	})
	mux.HandleFunc("/api/channels", func(w http.ResponseWriter, r *http.Request) {
		a.writeInspectorJSON(w, r, a.ChannelInfos())
	})
	mux.HandleFunc("/api/bridges", func(w http.ResponseWriter, r *http.Request) {
		a.writeInspectorJSON(w, r, a.BridgeInfos())
	})
	if a.metrics != nil {
		mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
			a.writeInspectorJSON(w, r, a.metrics.Snapshot())
		})
	}
	return mux
}

func (a *Application) registerInspector() {
	if !a.Conf.InspectorEnabled {
		return
	}

	port := a.Conf.InspectorPort
	if port == 0 {
		port = config.DefaultInspectorPort
	}

	a.RegisterHTTPHandler(port, "/api/", a.InspectorHandler())
}

func (a *Application) writeInspectorJSON(w http.ResponseWriter, r *http.Request, body any) {
	w.Header().Set("Content-Type", "application/json")

	if len(a.Conf.InspectorCORSAllowedOrigins) > 0 {
		allowedOrigin := a.allowedCORSOrigin(r.Header.Get("Origin"))
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if allowedOrigin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := jsoncodec.Encode(w, body); err != nil {
		a.Logger.Error("Failed to encode inspector response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// allowedCORSOrigin checks if the request origin is allowed and returns the
// appropriate Access-Control-Allow-Origin value.
func (a *Application) allowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range a.Conf.InspectorCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
