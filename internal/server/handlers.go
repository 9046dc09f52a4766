package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"

	"github.com/orbitlabs/orbit-cli/internal/manifest"
)

// Exponent protocol headers consumed from client requests.
const (
	headerPlatform        = "Exponent-Platform"
	headerAcceptSignature = "Exponent-Accept-Signature"
	headerServer          = "Exponent-Server"
)

// handleManifest serves the manifest, signed when the client asks for it.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	platform := r.Header.Get(headerPlatform)
	if platform == "" {
		platform = "ios"
	}

	resp, err := s.service.GetManifestResponse(r.Context(), manifest.Request{
		ProjectRoot:     s.projectRoot,
		Host:            r.Host,
		Platform:        platform,
		AcceptSignature: r.Header.Get(headerAcceptSignature) != "",
	})
	if err != nil {
		log.Error("failed to build manifest", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(headerServer, manifest.MarshalHostInfo(resp.HostInfo))
	fmt.Fprint(w, resp.Body)
}

// handleUpdatesManifest serves the updates-protocol manifest variant.
func (s *Server) handleUpdatesManifest(w http.ResponseWriter, r *http.Request) {
	platform := r.Header.Get(headerPlatform)
	if platform == "" {
		platform = "ios"
	}

	resp, err := s.service.GetManifestResponse(r.Context(), manifest.Request{
		ProjectRoot:     s.projectRoot,
		Host:            r.Host,
		Platform:        platform,
		UpdatesProtocol: true,
	})
	if err != nil {
		log.Error("failed to build updates manifest", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("expo-protocol-version", "0")
	w.Header().Set("expo-sfv-version", "0")
	w.Header().Set("cache-control", "private, max-age=0")
	w.Header().Set("content-type", "application/json")
	w.Write(resp.Manifest)
}

// handleLink issues a temporary redirect into the app's deep link.
//
// The dev client opens this URL in the system browser; the redirect hands
// control back to the app with the manifest URL attached.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	config, err := s.service.Builder().AppConfig()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	manifestURL := "http://" + r.Host
	scheme := config.Scheme
	var target string
	if scheme != "" {
		target = fmt.Sprintf("%s://expo-development-client/?url=%s", scheme, url.QueryEscape(manifestURL))
	} else {
		target = "exp://" + r.Host
	}

	log.Debug("deep link requested", "target", target)

	s.mu.Lock()
	onDeepLink := s.onDeepLink
	s.mu.Unlock()
	if onDeepLink != nil {
		onDeepLink(target)
	}

	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// deviceLogEntry is one entry of a batched device log POST.
type deviceLogEntry struct {
	Level string        `json:"level"`
	Body  []interface{} `json:"body"`
}

// handleLogs ingests batched console logs forwarded by client devices.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	deviceID := r.Header.Get("Device-Id")
	deviceName := r.Header.Get("Device-Name")
	if deviceName == "" {
		deviceName = deviceID
	}
	if deviceID != "" {
		s.mu.Lock()
		s.seenDevices[deviceID] = struct{}{}
		s.mu.Unlock()
	}

	var entries []deviceLogEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		http.Error(w, "invalid log payload", http.StatusBadRequest)
		return
	}

	for _, entry := range entries {
		line := fmt.Sprintf("%v", entry.Body)
		switch entry.Level {
		case "error", "fatal":
			log.Error(line, "device", deviceName)
		case "warn":
			log.Warn(line, "device", deviceName)
		default:
			log.Info(line, "device", deviceName)
		}
	}
	w.WriteHeader(http.StatusOK)
}

// handleShutdown stops the session on client request.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	onShutdown := s.onShutdown
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
	if onShutdown != nil {
		// Run outside the request so the response can be written first.
		go onShutdown()
	}
}
