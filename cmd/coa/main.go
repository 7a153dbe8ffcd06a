// coa sends a document and a question to a chain-of-agents server and
// renders worker progress as the event stream arrives.
//
//	coa --pdf report.pdf --query "What changed in Q3?"
//	coa --text notes.txt --query "Summarize the risks"
//	coa --watch --nats nats://localhost:4222
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"chain-of-agents-be/internal/pkg/logger"
	"chain-of-agents-be/pkg/events"
	pktNats "chain-of-agents-be/pkg/nats"
	"chain-of-agents-be/pkg/stream"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
)

type options struct {
	server   string
	pdfPath  string
	textPath string
	query    string
	token    string
	verbose  bool
	watch    bool
	natsURL  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("coa", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVar(&opts.server, "server", envOr("COA_SERVER", "http://localhost:5000"), "chain-of-agents server URL")
	flagSet.StringVar(&opts.pdfPath, "pdf", "", "PDF document to upload")
	flagSet.StringVar(&opts.textPath, "text", "", "plain text document to send instead of a PDF")
	flagSet.StringVarP(&opts.query, "query", "q", "", "question to answer")
	flagSet.StringVar(&opts.token, "token", os.Getenv("COA_TOKEN"), "bearer token when the server requires one")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "print full worker analyses")
	flagSet.BoolVar(&opts.watch, "watch", false, "print run events from NATS instead of sending a document")
	flagSet.StringVar(&opts.natsURL, "nats", envOr("NATS_URL", "nats://localhost:4222"), "NATS URL for --watch")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if opts.watch {
		return opts, nil
	}

	switch {
	case opts.query == "":
		return opts, errors.New("--query is required")
	case opts.pdfPath == "" && opts.textPath == "":
		return opts, errors.New("one of --pdf or --text is required")
	case opts.pdfPath != "" && opts.textPath != "":
		return opts, errors.New("--pdf and --text are mutually exclusive")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if opts.watch {
		return watch(ctx, opts.natsURL, out)
	}

	client := stream.NewClient(opts.server, logger.NewNopLogger())
	client.Token = opts.token

	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("server unavailable: %w", err)
	}

	req := stream.Request{Query: opts.query}
	if opts.pdfPath != "" {
		data, err := os.ReadFile(opts.pdfPath)
		if err != nil {
			return fmt.Errorf("read pdf: %w", err)
		}
		req.PDF = data
		req.Filename = filepath.Base(opts.pdfPath)
	} else {
		data, err := os.ReadFile(opts.textPath)
		if err != nil {
			return fmt.Errorf("read text: %w", err)
		}
		req.Text = string(data)
	}

	r := &renderer{out: out, verbose: opts.verbose}
	state, err := client.Process(ctx, req, r.frame)
	if err != nil {
		if state != nil && state.PartialAvailable() {
			fmt.Fprintf(out, "%s\n", color.YellowString("%d partial worker result(s) received before the failure", len(state.Workers)))
		}
		return err
	}
	return r.finish(state)
}

type renderer struct {
	out     io.Writer
	verbose bool
}

func (r *renderer) frame(frame stream.Frame, state *stream.RunState) {
	switch frame.Type {
	case stream.FrameMetadata:
		fmt.Fprintf(r.out, "%s\n", color.CyanString("Document: %d pages, %d chunks", state.TotalPages, state.TotalChunks))
	case stream.FrameWorker:
		worker := state.Workers[len(state.Workers)-1]
		progress := fmt.Sprintf("%d", worker.ID)
		if worker.Progress != nil {
			progress = fmt.Sprintf("%d/%d", worker.Progress.Current, worker.Progress.Total)
		}
		fmt.Fprintf(r.out, "%s %s\n", color.GreenString("[worker %s]", progress), summarize(worker.Content, r.verbose))
	case stream.FrameManager:
		fmt.Fprintf(r.out, "\n%s\n%s\n", color.New(color.Bold).Sprint("Answer:"), frame.Content)
	case stream.FrameError:
		fmt.Fprintf(r.out, "%s\n", color.RedString("Server error: %s", frame.Content))
	}
}

func (r *renderer) finish(state *stream.RunState) error {
	switch {
	case state.Failed():
		return state.Err
	case !state.Completed() && state.PartialAvailable():
		return fmt.Errorf("stream ended without a final answer (%d of %d chunks analyzed)", len(state.Workers), state.TotalChunks)
	case !state.Completed():
		return errors.New("stream ended without any result")
	}
	return nil
}

func summarize(text string, verbose bool) string {
	if verbose {
		return text
	}
	runes := []rune(text)
	if len(runes) <= 100 {
		return text
	}
	return string(runes[:100]) + "..."
}

func watch(ctx context.Context, natsURL string, out io.Writer) error {
	sub, err := pktNats.NewSubscriber(natsURL)
	if err != nil {
		return err
	}
	defer sub.Close()

	err = sub.Subscribe(ctx, pktNats.Subject(">"), "", func(ctx context.Context, event events.Event) error {
		payload := event.Payload()
		line := fmt.Sprintf("%s run=%v chunks=%v duration_ms=%v", event.Timestamp().Format("15:04:05"), payload["run_id"], payload["total_chunks"], payload["duration_ms"])
		if event.EventType() == events.RunFailed {
			fmt.Fprintf(out, "%s %s error=%v\n", color.RedString(event.EventType()), line, payload["error"])
		} else {
			fmt.Fprintf(out, "%s %s\n", color.GreenString(event.EventType()), line)
		}
		return nil
	})
	if err != nil {
		return err
	}

	color.Cyan("Watching run events on %s (Ctrl+C to stop)", natsURL)
	<-ctx.Done()
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
