package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/vivavoce/internal/live"
	"github.com/MrWong99/vivavoce/internal/observe"
	"github.com/MrWong99/vivavoce/internal/videogen"
	provlive "github.com/MrWong99/vivavoce/pkg/provider/live"
)

// ── Chat ─────────────────────────────────────────────────────────────────────

// RunChat runs the chat REPL: each input line is one turn and the reply is
// printed as it streams in. "/reset" clears the history and "/quit" or EOF
// ends the session.
func (a *App) RunChat(ctx context.Context) error {
	if a.conv == nil {
		return errors.New("app: chat provider not configured")
	}
	name := a.persona().Name
	if name == "" {
		name = "persona"
	}
	fmt.Fprintf(a.out, "Chatting with %s. /reset clears the history, /quit exits.\n", name)

	input := lines(ctx, a.in)
	for {
		fmt.Fprint(a.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return nil
		case l, ok := <-input:
			if !ok {
				fmt.Fprintln(a.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/reset":
			a.conv.Reset()
			fmt.Fprintln(a.out, "(history cleared)")
			continue
		}

		if err := a.chatTurn(ctx, name, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(a.out, "\nerror: %v\n", err)
		}
	}
}

func (a *App) chatTurn(ctx context.Context, name, text string) error {
	ch, err := a.conv.Send(ctx, text)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: ", name)
	var failed error
	for chunk := range ch {
		if chunk.Err != nil {
			failed = chunk.Err
			continue
		}
		fmt.Fprint(a.out, chunk.Text)
	}
	if failed != nil {
		return failed
	}
	fmt.Fprintln(a.out)
	return nil
}

// ── Video ────────────────────────────────────────────────────────────────────

// RunVideo runs one video job and prints its progress and the output path.
func (a *App) RunVideo(ctx context.Context, req VideoRequest) error {
	if a.gen == nil {
		return errors.New("app: video provider not configured")
	}
	vreq := videogen.Request{Prompt: req.Prompt, AspectRatio: req.Aspect}
	if vreq.AspectRatio == "" {
		vreq.AspectRatio = a.cfg.Video.AspectRatio
	}
	if req.ImagePath != "" {
		img, err := videogen.LoadImage(req.ImagePath)
		if err != nil {
			return err
		}
		vreq.Image = img
	}

	res, err := a.gen.Generate(ctx, vreq, func(msg string) {
		fmt.Fprintln(a.out, msg)
	})
	if err != nil {
		var jobErr *videogen.UpstreamJobError
		if errors.As(err, &jobErr) {
			fmt.Fprintln(a.out, "The service could not produce a video. You can try again.")
		}
		return err
	}
	fmt.Fprintf(a.out, "Saved %s\n", res.Path)
	return nil
}

// ── Live ─────────────────────────────────────────────────────────────────────

// RunLive starts a live session and prints transcripts until the user enters
// an empty line, the input ends, ctx is cancelled or the session fails.
// Non-empty lines are sent to the session as typed user turns.
func (a *App) RunLive(ctx context.Context) error {
	if a.ctrl == nil {
		return errors.New("app: live provider not configured")
	}
	if err := a.ctrl.Start(ctx); err != nil {
		var perr *live.PermissionError
		if errors.As(err, &perr) {
			fmt.Fprintf(a.out, "Permission needed: %s\n", perr.Resource)
		}
		return err
	}
	fmt.Fprintln(a.out, "Live session started. Speak, or type a message. Press Enter on an empty line to stop.")

	input := lines(ctx, a.in)
	transcripts := a.ctrl.Transcripts()
	var sessionErr error

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-a.liveErrs:
			fmt.Fprintf(a.out, "\nSession ended: %v\n", err)
			sessionErr = err
			break loop
		case t := <-transcripts:
			a.printTranscript(t)
		case l, ok := <-input:
			if !ok || strings.TrimSpace(l) == "" {
				break loop
			}
			if err := a.ctrl.SendText(ctx, strings.TrimSpace(l)); err != nil {
				observe.Logger(ctx).Warn("live: send text failed", "err", err)
				fmt.Fprintf(a.out, "error: %v\n", err)
			}
		}
	}

	// The caller's ctx may already be cancelled; the release must still run.
	stopErr := a.ctrl.Stop(context.WithoutCancel(ctx))
	fmt.Fprintln(a.out, "Live session stopped.")
	return errors.Join(sessionErr, stopErr)
}

func (a *App) printTranscript(t live.Transcript) {
	if t.TurnComplete {
		fmt.Fprintln(a.out)
		return
	}
	who := "you"
	if t.Role == provlive.RoleModel {
		who = a.persona().Name
		if who == "" {
			who = "persona"
		}
	}
	fmt.Fprintf(a.out, "[%s] %s\n", who, t.Text)
}
