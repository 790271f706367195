package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"

	"weatherdine/internal/adapter/tool"
	"weatherdine/internal/domain"
	"weatherdine/internal/infra/config"
	"weatherdine/internal/usecase"
	"weatherdine/internal/usecase/catalog"
	"weatherdine/internal/usecase/workflow"
)

func runAgents(args []string) error {
	fs := newFlagSet("agents")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, cleanup, err := boot(context.Background(), bootOptions{agents: true})
	if err != nil {
		return err
	}
	defer cleanup()

	printAgents(os.Stdout, a.agents.List(), a.agents.Collections())
	return nil
}

func printAgents(w io.Writer, agents []domain.AgentStatus, collections []domain.AgentCollection) {
	fmt.Fprintln(w, "AGENTS")
	for _, s := range agents {
		line := fmt.Sprintf("  %-20s %s (%s/%s)", s.ID, s.Name, s.Provider, s.Model)
		if len(s.Tools) > 0 {
			line += " tools=" + strings.Join(s.Tools, ",")
		}
		if s.Memory {
			line += " memory"
		}
		fmt.Fprintln(w, line)
	}
	if len(collections) == 0 {
		return
	}
	fmt.Fprintln(w, "\nCOLLECTIONS")
	for _, c := range collections {
		fmt.Fprintf(w, "  %-20s %s: agents=%s", c.ID, c.Name, strings.Join(c.Agents, ","))
		if len(c.Workflows) > 0 {
			fmt.Fprintf(w, " workflows=%s", strings.Join(c.Workflows, ","))
		}
		fmt.Fprintln(w)
	}
}

func runChat(args []string) error {
	fs := newFlagSet("chat")
	agentID := fs.String("agent", catalog.RestaurantAgentID, "agent ID")
	threadID := fs.String("thread", "", "thread ID (default: a new thread)")
	resourceID := fs.String("resource", "cli", "resource ID that owns the thread")
	plain := fs.Bool("plain", false, "print replies without markdown rendering")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := boot(ctx, bootOptions{agents: true})
	if err != nil {
		return err
	}
	defer cleanup()

	inst, err := a.agents.Get(*agentID)
	if err != nil {
		return err
	}
	if *threadID == "" {
		*threadID = usecase.NewThreadID()
	}
	r := newReplyRenderer(*plain)

	if msg := strings.Join(fs.Args(), " "); msg != "" {
		reply, err := inst.Generate(ctx, *threadID, *resourceID, msg)
		if err != nil {
			return err
		}
		fmt.Print(r.render(reply))
		return nil
	}

	fmt.Printf("Chatting with %s on thread %s. Type 'exit' to quit.\n", inst.Definition.Name, *threadID)
	return chatLoop(ctx, os.Stdin, os.Stdout, r, func(ctx context.Context, msg string) (string, error) {
		return inst.Generate(ctx, *threadID, *resourceID, msg)
	})
}

// chatLoop reads one message per line from in until EOF, "exit" or "quit".
// A failed turn is reported and the loop continues.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, r *replyRenderer, send func(context.Context, string) (string, error)) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		msg := strings.TrimSpace(scanner.Text())
		switch msg {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, err := send(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprint(out, r.render(reply))
	}
}

// replyRenderer renders agent replies as terminal markdown.
type replyRenderer struct {
	md *glamour.TermRenderer // nil prints replies as-is
}

func newReplyRenderer(plain bool) *replyRenderer {
	if plain {
		return &replyRenderer{}
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return &replyRenderer{}
	}
	return &replyRenderer{md: md}
}

func (r *replyRenderer) render(reply string) string {
	if r.md != nil {
		if out, err := r.md.Render(reply); err == nil {
			return out
		}
	}
	if !strings.HasSuffix(reply, "\n") {
		reply += "\n"
	}
	return reply
}

func runWorkflow(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: workflow run ID --input JSON | workflow list | workflow runs [--limit N]")
	}
	sub, args := args[0], args[1:]

	fs := newFlagSet("workflow " + sub)
	input := fs.String("input", "{}", "workflow input as JSON")
	limit := fs.Int("limit", 20, "number of runs to list")

	// Accept the workflow ID before or after the flags.
	var id string
	if sub == "run" && len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		id, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if id == "" && fs.NArg() > 0 {
		id = fs.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := boot(ctx, bootOptions{agents: true})
	if err != nil {
		return err
	}
	defer cleanup()

	switch sub {
	case "list":
		printWorkflows(os.Stdout, a.workflows.List())
		return nil
	case "runs":
		runs, err := a.workflows.ListRuns(ctx, *limit)
		if err != nil {
			return err
		}
		printRuns(os.Stdout, runs)
		return nil
	case "run":
		if id == "" {
			return errors.New("workflow ID is required")
		}
		if !json.Valid([]byte(*input)) {
			return fmt.Errorf("--input is not valid JSON")
		}
		run, err := a.workflows.Run(ctx, id, json.RawMessage(*input))
		if err != nil {
			return err
		}
		if err := printJSON(os.Stdout, run); err != nil {
			return err
		}
		if run.Status == domain.RunStatusFailed {
			return fmt.Errorf("run %s failed: %s", run.ID, run.Error)
		}
		return nil
	default:
		return fmt.Errorf("unknown workflow subcommand %q", sub)
	}
}

func printWorkflows(w io.Writer, infos []workflow.Info) {
	for _, info := range infos {
		fmt.Fprintf(w, "%s  %s\n", info.ID, info.Description)
		for i, s := range info.Steps {
			fmt.Fprintf(w, "  %d. %s  %s\n", i+1, s.ID, s.Description)
		}
	}
}

func printRuns(w io.Writer, runs []domain.WorkflowRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-20s %-10s %s", r.ID, r.WorkflowID, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"))
		if r.Error != "" {
			fmt.Fprintf(w, "  %s", r.Error)
		}
		fmt.Fprintln(w)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runTool(args []string) error {
	fs := newFlagSet("tool")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: tool NAME [JSON]")
	}
	name := fs.Arg(0)
	params := json.RawMessage(`{}`)
	if fs.NArg() > 1 {
		params = json.RawMessage(fs.Arg(1))
		if !json.Valid(params) {
			return fmt.Errorf("params are not valid JSON")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := boot(ctx, bootOptions{})
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := tool.Call(ctx, a.tools, a.bus, "cli", name, params)
	if err != nil {
		return err
	}
	fmt.Println(res.Content)
	if res.IsError {
		return fmt.Errorf("tool %s returned an error", name)
	}
	return nil
}

func runMCP(args []string) error {
	fs := newFlagSet("mcp")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol.
	a, cleanup, err := boot(ctx, bootOptions{adjust: func(cfg *config.Config) {
		if strings.EqualFold(cfg.Logger.Output, "stdout") {
			cfg.Logger.Output = "stderr"
		}
		if cfg.Tracer.Exporter == "stdout" {
			cfg.Tracer.Enabled = false
		}
	}})
	if err != nil {
		return err
	}
	defer cleanup()

	a.log.Info("mcp server listening on stdio", "tools", len(a.tools.List()))
	return tool.NewMCPServer("weatherdine", version, a.tools, a.bus, a.log).Serve(ctx, os.Stdin, os.Stdout)
}

func runEncrypt(args []string) error {
	fs := newFlagSet("encrypt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: encrypt VALUE")
	}
	passphrase := os.Getenv("WEATHERDINE_CONFIG_KEY")
	if passphrase == "" {
		return errors.New("WEATHERDINE_CONFIG_KEY must be set")
	}
	enc, err := config.EncryptValue(fs.Arg(0), passphrase)
	if err != nil {
		return err
	}
	fmt.Println("enc:" + enc)
	return nil
}
