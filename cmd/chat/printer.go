package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	"github.com/MegaGrindStone/openrouter-chat/internal/session"
)

// printer writes assistant replies to a terminal as they stream. Every snapshot carries the whole
// conversation, so it remembers how much of the current reply is already on screen and prints only the
// rest.
type printer struct {
	mu  sync.Mutex
	out io.Writer

	replyID  string
	printed  int
	ended    bool
	errShown bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

// Write lets the REPL share the output without interleaving with a reply.
func (p *printer) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *printer) update(snap session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(snap.Messages) == 0 {
		p.replyID = ""
		p.printed = 0
		p.ended = false
		p.errShown = false
		return
	}

	last := snap.Messages[len(snap.Messages)-1]
	if last.Role == models.RoleAssistant {
		if last.ID != p.replyID {
			p.replyID = last.ID
			p.printed = 0
			p.ended = false
			fmt.Fprint(p.out, models.RoleAssistant.Label()+": ")
		}
		if text := last.Text(); len(text) > p.printed {
			fmt.Fprint(p.out, text[p.printed:])
			p.printed = len(text)
		}
		if !last.Open && !p.ended {
			fmt.Fprintln(p.out)
			p.ended = true
		}
	}

	switch {
	case snap.Status == models.StatusError && !p.errShown:
		fmt.Fprintf(p.out, "Error: %v\n", snap.Err)
		p.errShown = true
	case snap.Status != models.StatusError:
		p.errShown = false
	}
}
