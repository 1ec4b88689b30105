// Command gdpr-service is a standalone mock of a connected service's GDPR
// API for local development and e2e runs. It answers profile data queries
// and two-phase deletions, with failure modes switchable per request.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	defaultPort      = "8081"
	defaultService   = "berthservice"
	defaultLatencyMs = "50"
)

type localizedMessage struct {
	Lang string `json:"lang"`
	Text string `json:"text"`
}

type apiError struct {
	Code    string             `json:"code"`
	Message []localizedMessage `json:"message"`
}

type errorBody struct {
	Errors []apiError `json:"errors"`
}

type node struct {
	Key      string `json:"key"`
	Value    any    `json:"value,omitempty"`
	Children []node `json:"children,omitempty"`
}

var (
	serviceName = getEnv("SERVICE_NAME", defaultService)
	latencyMs   = getEnvInt("LATENCY_MS", defaultLatencyMs)

	mu sync.Mutex
	// deleted remembers committed deletions so repeated queries reflect them.
	deleted = map[string]bool{}
)

func main() {
	port := getEnv("PORT", defaultPort)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /gdpr-api/v1/profiles/{id}", handleQuery)
	mux.HandleFunc("DELETE /gdpr-api/v1/profiles/{id}", handleDelete)

	log.Printf("mock GDPR API for %s listening on :%s", serviceName, port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleQuery(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)
	if !authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	profileID := r.PathValue("id")

	mu.Lock()
	gone := deleted[profileID]
	mu.Unlock()
	if gone {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, node{
		Key: "BERTHS",
		Children: []node{
			{Key: "BERTH", Children: []node{
				{Key: "HARBOR", Value: "Eläintarhanlahti"},
				{Key: "PIER", Value: "A"},
				{Key: "NUMBER", Value: 17},
			}},
		},
	})
}

// handleDelete implements the two-phase protocol: dry_run=true only checks
// whether deletion would succeed, a plain DELETE commits it. Set
// DENY_DELETE=true to exercise the failure path.
func handleDelete(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)
	if !authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if getEnv("DENY_DELETE", "false") == "true" {
		writeJSON(w, http.StatusForbidden, errorBody{Errors: []apiError{{
			Code: "ACTIVE_RESERVATIONS",
			Message: []localizedMessage{
				{Lang: "en", Text: "The profile has active berth reservations"},
				{Lang: "fi", Text: "Profiililla on voimassa olevia venepaikkavarauksia"},
			},
		}}})
		return
	}

	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	if !dryRun {
		mu.Lock()
		deleted[r.PathValue("id")] = true
		mu.Unlock()
	}
	w.WriteHeader(http.StatusNoContent)
}

func authorized(r *http.Request) bool {
	// Any bearer token passes; the mock only checks that one is present.
	return r.Header.Get("Authorization") != ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key, fallback string) int {
	v := getEnv(key, fallback)
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}
