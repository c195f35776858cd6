package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"assessment-backend/internal/assessments"
	"assessment-backend/internal/client"
	"assessment-backend/internal/exporter"
	"assessment-backend/internal/notify"
	"assessment-backend/internal/poller"
	"assessment-backend/internal/session"
)

func newBackend() *client.Client {
	return client.New(serverURL)
}

func newSessionStore() *session.Store {
	return session.NewStore(sessionFile)
}

func dataDir() string {
	if sessionFile != "" {
		return filepath.Dir(sessionFile)
	}
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "assessor")
}

func draftPath() string     { return filepath.Join(dataDir(), "draft.json") }
func lastInputPath() string { return filepath.Join(dataDir(), "last-submit.json") }

func loadDraft() (assessments.Document, error) {
	var doc assessments.Document
	raw, err := os.ReadFile(draftPath())
	if err != nil {
		if os.IsNotExist(err) {
			return doc, fmt.Errorf("no draft found; complete a job first")
		}
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parsing draft: %w", err)
	}
	return doc.Normalize(), nil
}

func saveDraft(doc assessments.Document) error {
	if err := os.MkdirAll(dataDir(), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(draftPath(), raw, 0o600)
}

func saveLastInput(in poller.SubmitInput) {
	raw, err := json.Marshal(in)
	if err != nil {
		return
	}
	if err := os.MkdirAll(dataDir(), 0o700); err != nil {
		return
	}
	_ = os.WriteFile(lastInputPath(), raw, 0o600)
}

func loadLastInput() (poller.SubmitInput, bool) {
	var in poller.SubmitInput
	raw, err := os.ReadFile(lastInputPath())
	if err != nil {
		return in, false
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, false
	}
	return in, true
}

func newExporter() *exporter.Exporter {
	return &exporter.Exporter{Backend: newBackend(), DownloadDir: downloadDir}
}

// watchSession builds a poller whose hooks drive terminal output, saves the
// completed document as the local draft, and signals done.
func watchSession(backend poller.Backend, store *session.Store) (*poller.Poller, <-chan error) {
	done := make(chan error, 1)
	bridge := notify.NewBridge(nil)
	bridge.Enable()

	lastProgress := -1
	hooks := poller.Hooks{
		OnUpdate: func(snap poller.Snapshot) {
			if snap.Progress != lastProgress {
				lastProgress = snap.Progress
				step := snap.CurrentStep
				if step == "" {
					step = "Waiting"
				}
				printStep("%3d%%  %s", snap.Progress, step)
			}
		},
		OnComplete: func(doc assessments.Document) {
			if err := saveDraft(doc); err != nil {
				printError("saving draft: %v", err)
			}
			bridge.Completed(doc.ProjectMeta.ProjectName)
			done <- nil
		},
		OnFailed: func(message string) {
			bridge.Failed(message)
			done <- fmt.Errorf("generation failed: %s", message)
		},
	}
	return poller.New(backend, store, hooks), done
}
