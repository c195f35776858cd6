package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"assessment-backend/internal/draft"
	"assessment-backend/internal/jobs"
	"assessment-backend/internal/poller"
)

// --- submit ---

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a generation job and watch it to completion",
	Long: `Submit a generation job and watch it to completion.

Examples:
  assessor submit --query "Risk assessment for live panel work" --work-type commercial
  assessor submit --file ./requirements.txt --project "Unit 4 rewire" --detach`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query, _ := cmd.Flags().GetString("query")
		file, _ := cmd.Flags().GetString("file")
		workType, _ := cmd.Flags().GetString("work-type")
		project, _ := cmd.Flags().GetString("project")
		location, _ := cmd.Flags().GetString("location")
		clientName, _ := cmd.Flags().GetString("client")
		detach, _ := cmd.Flags().GetBool("detach")

		if query == "" && file == "" {
			return fmt.Errorf("one of --query or --file is required")
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			query = string(data)
		}

		in := poller.SubmitInput{
			Query:    query,
			WorkType: workType,
			ProjectInfo: jobs.ProjectInfo{
				ProjectName: project,
				Location:    location,
				ClientName:  clientName,
			},
		}
		return submitAndWatch(cmd.Context(), in, detach)
	},
}

func submitAndWatch(ctx context.Context, in poller.SubmitInput, detach bool) error {
	store := newSessionStore()
	p, done := watchSession(newBackend(), store)

	jobID, err := p.Submit(ctx, in)
	if err != nil {
		return err
	}
	saveLastInput(in)
	printSuccess("Job %s submitted", jobID)

	if detach {
		p.Stop()
		printStatus("Resume", "assessor watch")
		return nil
	}
	return waitForOutcome(p, done)
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Resume watching the active job from the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := newSessionStore()
		p, done := watchSession(newBackend(), store)
		if !p.Resume() {
			printStatus("Session", "no active job")
			return nil
		}
		printStep("Resuming job %s", p.Snapshot().JobID)
		return waitForOutcome(p, done)
	},
}

// waitForOutcome blocks until the poller reaches a terminal state or the
// user interrupts. Interrupting detaches; the session survives for a later
// resume.
func waitForOutcome(p *poller.Poller, done <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-done:
		if err != nil {
			printStatus("Retry", "assessor retry")
			return err
		}
		printSuccess("Assessment ready; draft saved to %s", draftPath())
		printStatus("Export", "assessor export")
		return nil
	case <-sigCh:
		p.Stop()
		printStatus("Detached", "resume with: assessor watch")
		return nil
	}
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show the current state of a job",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := resolveJobID(args)
		if err != nil {
			return err
		}
		st, err := newBackend().GetJobStatus(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		printStatus("Job", "%s", st.JobID)
		printStatus("Status", "%s", st.Status)
		printStatus("Progress", "%d%%", st.Progress)
		if st.CurrentStep != "" {
			printStatus("Step", "%s", st.CurrentStep)
		}
		if st.Error != "" {
			printStatus("Error", "%s", st.Error)
		}
		return nil
	},
}

// --- cancel ---

var cancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel the active job",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := resolveJobID(args)
		if err != nil {
			return err
		}
		res, err := newBackend().CancelJob(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		if !res.Cancelled {
			printStatus("Job", "%s already %s; nothing to cancel", res.JobID, res.Status)
		} else {
			printSuccess("Job %s cancelled", res.JobID)
		}
		if err := newSessionStore().Clear(); err != nil {
			return err
		}
		return nil
	},
}

func resolveJobID(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	state, ok := newSessionStore().Load()
	if !ok {
		return "", fmt.Errorf("no active session; pass a job id")
	}
	return state.JobID, nil
}

// --- retry ---

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Re-submit the last submission",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, ok := loadLastInput()
		if !ok {
			printStatus("Retry", "no remembered submission; run assessor submit")
			return nil
		}
		return submitAndWatch(cmd.Context(), in, false)
	},
}

// --- copy ---

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Copy the draft document to the clipboard as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadDraft()
		if err != nil {
			return err
		}
		if err := newExporter().CopyJSON(doc); err != nil {
			return err
		}
		printSuccess("Draft copied to clipboard")
		return nil
	},
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the draft document as a PDF",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadDraft()
		if err != nil {
			return err
		}
		outcome, err := newExporter().ExportPDF(cmd.Context(), doc)
		if err != nil {
			return err
		}
		if outcome.UsedFallback {
			printStep("Remote renderer unavailable; used local fallback")
		}
		printSuccess("PDF written to %s", outcome.Path)
		return nil
	},
}

// --- edit ---

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the draft document",
}

var editAddCmd = &cobra.Command{
	Use:   "add <hazards|ppe|procedures>",
	Short: "Append a default item to a section",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDraft(func(s *draft.Store) error {
			section, err := parseSection(args[0])
			if err != nil {
				return err
			}
			s.AddItem(section)
			return nil
		})
	},
}

var editDeleteCmd = &cobra.Command{
	Use:   "delete <hazards|ppe|procedures> <index>",
	Short: "Delete an item from a section",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDraft(func(s *draft.Store) error {
			section, err := parseSection(args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}
			s.DeleteItem(section, index)
			return nil
		})
	},
}

var editMoveCmd = &cobra.Command{
	Use:   "move <index> <up|down>",
	Short: "Move an emergency procedure step",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDraft(func(s *draft.Store) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			var dir draft.Direction
			switch args[1] {
			case "up":
				dir = draft.DirectionUp
			case "down":
				dir = draft.DirectionDown
			default:
				return fmt.Errorf("direction must be up or down")
			}
			s.MoveProcedure(index, dir)
			return nil
		})
	},
}

var editNotesCmd = &cobra.Command{
	Use:   "notes <text>",
	Short: "Set the notes field",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDraft(func(s *draft.Store) error {
			s.SetNotes(args[0])
			return nil
		})
	},
}

func withDraft(op func(*draft.Store) error) error {
	doc, err := loadDraft()
	if err != nil {
		return err
	}
	store := draft.NewStore(doc)
	if err := op(store); err != nil {
		return err
	}
	if err := saveDraft(store.Document()); err != nil {
		return err
	}
	printSuccess("Draft updated")
	return nil
}

func parseSection(name string) (draft.Section, error) {
	switch name {
	case "hazards":
		return draft.SectionHazards, nil
	case "ppe":
		return draft.SectionPPE, nil
	case "procedures":
		return draft.SectionProcedures, nil
	default:
		return "", fmt.Errorf("unknown section %q", name)
	}
}

func init() {
	submitCmd.Flags().String("query", "", "free-text job requirements")
	submitCmd.Flags().String("file", "", "read requirements from a file")
	submitCmd.Flags().String("work-type", "domestic", "work type: domestic, commercial, or industrial")
	submitCmd.Flags().String("project", "", "project name")
	submitCmd.Flags().String("location", "", "site location")
	submitCmd.Flags().String("client", "", "client name")
	submitCmd.Flags().Bool("detach", false, "submit and exit; resume later with watch")

	editCmd.AddCommand(editAddCmd, editDeleteCmd, editMoveCmd, editNotesCmd)
}
