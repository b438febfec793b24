package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/chronicle-engine/internal/app"
	"github.com/jwebster45206/chronicle-engine/internal/engine"
	"github.com/jwebster45206/chronicle-engine/internal/worker"
	"github.com/jwebster45206/chronicle-engine/pkg/prompts"
	"github.com/jwebster45206/chronicle-engine/pkg/queue"
	"github.com/jwebster45206/chronicle-engine/pkg/state"
	"github.com/jwebster45206/chronicle-engine/pkg/storage"
)

const wrapWidth = 80

const playHelp = `Type an action, or a choice number. Commands:
  /skill <stat>           develop a skill from a stat
  /power <name>: <text>   invent a custom power
  /confirm, /decline      resolve a pending skill
  /undo                   step back one turn
  /image                  retry the scene image
  /stats                  show the character sheet
  /quit                   leave (the session is saved after every turn)`

var errQuit = errors.New("quit")

func (r *root) newPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a session in the terminal",
		Long:  "Start a new session from a seed file, or resume a saved one. Every turn is saved to the save file.",
		Args:  cobra.NoArgs,
		RunE:  r.runPlay,
	}
	cmd.Flags().String("seed", "", "YAML or JSON seed file (worldContext, characterSheet, settings) for a new session")
	cmd.Flags().String("game", "", "ID of a saved session to resume")
	return cmd
}

func (r *root) runPlay(cmd *cobra.Command, args []string) error {
	seedPath, _ := cmd.Flags().GetString("seed")
	gameID, _ := cmd.Flags().GetString("game")
	if (seedPath == "") == (gameID == "") {
		return fmt.Errorf("exactly one of --seed or --game is required")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	s, err := r.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	processor, closeGen, err := r.processor(ctx, s)
	if err != nil {
		return err
	}
	defer closeGen()

	observer := func(_ uuid.UUID, p engine.Phase) {
		if p != engine.PhaseIdle && p != engine.PhaseCommitted {
			fmt.Fprintf(cmd.ErrOrStderr(), "... %s\n", p)
		}
	}

	var gs *state.GameState
	if gameID != "" {
		id, err := uuid.Parse(gameID)
		if err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
		if gs, err = processor.GetGameState(ctx, id); err != nil {
			return err
		}
	} else {
		seed, err := loadSeed(seedPath)
		if err != nil {
			return err
		}
		req := queue.NewRequest(queue.RequestTypeStart, uuid.New())
		req.Seed = seed
		if gs, err = processor.Process(ctx, req, observer); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}

	fmt.Fprintf(out, "Session %s\n%s\n\n", gs.ID, playHelp)
	printTurn(out, gs)

	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "/stats" {
			printSheet(out, gs)
			continue
		}
		req, err := parseInput(line, gs)
		if errors.Is(err, errQuit) {
			fmt.Fprintf(out, "Saved. Resume with: chronicle play --game %s\n", gs.ID)
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "%v\n", err)
			continue
		}
		if req == nil {
			continue
		}

		next, err := processor.Process(ctx, req, observer)
		if err != nil {
			printError(out, err)
			continue
		}
		gs = next
		if req.Type == queue.RequestTypeRegenerateImage {
			printImage(out, gs)
			continue
		}
		printTurn(out, gs)
	}
}

// processor builds a request processor for the local save file. The
// returned func releases provider clients.
func (r *root) processor(ctx context.Context, s storage.Storage) (*worker.Processor, func(), error) {
	cfg := r.opts.Config
	if r.opts.Generator != nil {
		return worker.NewProcessor(s, r.opts.Generator, app.EngineConfig(cfg), r.opts.Logger), func() {}, nil
	}
	gen, err := app.NewGenerator(ctx, cfg, nil, r.opts.Logger)
	if err != nil {
		return nil, nil, err
	}
	p := worker.NewProcessor(s, gen.Generator, app.EngineConfig(cfg), r.opts.Logger)
	if gen.Credentials != nil {
		p.WithCredentials(gen.Credentials)
	}
	if gen.Images != nil {
		p.WithImages(gen.Images)
	}
	return p, func() { _ = gen.Close() }, nil
}

func loadSeed(path string) (*prompts.Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed prompts.Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if strings.TrimSpace(seed.WorldContext) == "" {
		return nil, fmt.Errorf("seed: worldContext is required")
	}
	seed.Settings = seed.Settings.WithDefaults()
	return &seed, nil
}

// parseInput maps a line of player input to a request. Blank input yields
// nil, nil.
func parseInput(line string, gs *state.GameState) (*queue.Request, error) {
	if line == "" {
		return nil, nil
	}
	id := gs.ID
	if !strings.HasPrefix(line, "/") {
		if n, err := strconv.Atoi(line); err == nil {
			last, ok := gs.LastTurn()
			if !ok || n < 1 || n > len(last.Choices) {
				return nil, fmt.Errorf("no choice %d", n)
			}
			line = last.Choices[n-1]
		}
		req := queue.NewRequest(queue.RequestTypeAction, id)
		req.Action = line
		return req, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/quit", "/exit":
		return nil, errQuit
	case "/undo":
		return queue.NewRequest(queue.RequestTypeUndo, id), nil
	case "/image":
		return queue.NewRequest(queue.RequestTypeRegenerateImage, id), nil
	case "/confirm":
		return queue.NewRequest(queue.RequestTypeConfirmSkill, id), nil
	case "/decline":
		return queue.NewRequest(queue.RequestTypeDeclineSkill, id), nil
	case "/skill":
		if rest == "" {
			return nil, fmt.Errorf("usage: /skill <stat>")
		}
		req := queue.NewRequest(queue.RequestTypeSkillFromStat, id)
		req.StatName = rest
		return req, nil
	case "/power":
		power, desc, _ := strings.Cut(rest, ":")
		if strings.TrimSpace(power) == "" {
			return nil, fmt.Errorf("usage: /power <name>: <description>")
		}
		req := queue.NewRequest(queue.RequestTypeCustomPower, id)
		req.PowerName = strings.TrimSpace(power)
		req.Description = strings.TrimSpace(desc)
		return req, nil
	default:
		return nil, fmt.Errorf("unknown command %s", name)
	}
}

func printTurn(w io.Writer, gs *state.GameState) {
	last, ok := gs.LastTurn()
	if !ok {
		return
	}
	fmt.Fprintln(w, wordwrap.String(last.StoryText, wrapWidth))
	fmt.Fprintln(w)
	for i, c := range last.Choices {
		fmt.Fprintf(w, "  %d. %s\n", i+1, c)
	}
	if p := gs.PendingSkill; p != nil {
		fmt.Fprintf(w, "\nPending skill: %s\n%s\n", p.Skill.Name, wordwrap.String(p.Skill.Description, wrapWidth))
		for _, a := range p.Skill.Abilities {
			fmt.Fprintf(w, "  - %s: %s\n", a.Name, a.Description)
		}
		fmt.Fprintln(w, "Use /confirm or /decline.")
	}
	printImage(w, gs)
}

func printImage(w io.Writer, gs *state.GameState) {
	switch {
	case gs.ImageError != "":
		fmt.Fprintf(w, "(image failed: %s; retry with /image)\n", gs.ImageError)
	case gs.LastImage != "" && !strings.HasPrefix(gs.LastImage, "data:"):
		fmt.Fprintf(w, "(image: %s)\n", gs.LastImage)
	}
}

func printSheet(w io.Writer, gs *state.GameState) {
	for _, name := range gs.PlayerStatOrder {
		st, ok := gs.PlayerStats[name]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %-20s %s\n", name, st.Value.String())
	}
	for _, sk := range gs.Skills {
		fmt.Fprintf(w, "  [%s]\n", sk.Name)
		for _, a := range sk.Abilities {
			fmt.Fprintf(w, "    - %s\n", a.Name)
		}
	}
}

func printError(w io.Writer, err error) {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		fmt.Fprintf(w, "error (%s): %s\n", engErr.Kind, engErr.Message)
		if engErr.Recoverable {
			fmt.Fprintln(w, "The turn was not applied; try again.")
		}
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}
