package fieldvoice

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/agnivade/fieldvoice/providers"
)

// selectionWindow is how often the active provider choice is
// re-evaluated, and how far back a result still counts as recent.
const selectionWindow = 2 * time.Second

// Selector fans live audio out to every configured speech provider and
// forwards final transcripts from whichever provider has responded most
// recently. It implements providers.Session so the WebSocket handler
// can treat one provider and many providers the same way.
//
// Switching the active provider can skip utterances the new provider
// already emitted while it was passive. For a live preview surface that
// is an accepted gap; persisted notes go through the one-shot
// transcription path instead.
type Selector struct {
	sessions map[string]providers.Session
	audio    chan []byte
	results  chan providers.TranscriptionResult
	out      chan providers.TranscriptionResult

	active   string
	lastSeen map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	log    *log.Logger
	wg     sync.WaitGroup
}

// NewSelector opens a session on every provider and starts the fan-out
// and selection loops. Providers that fail to open a session are
// skipped; at least one must succeed.
func NewSelector(ctx context.Context, providersList []providers.Provider, config providers.SessionConfig, logger *log.Logger) (*Selector, error) {
	ctx, cancel := context.WithCancel(ctx)

	sel := &Selector{
		sessions: make(map[string]providers.Session, len(providersList)),
		audio:    make(chan []byte, 100),
		results:  make(chan providers.TranscriptionResult, 100),
		out:      make(chan providers.TranscriptionResult, 10),
		lastSeen: make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
		log:      logger,
	}

	for _, provider := range providersList {
		session, err := provider.NewSession(ctx, config)
		if err != nil {
			sel.log.Printf("Provider %s session failed, skipping: %v", provider.Name(), err)
			continue
		}
		sel.sessions[provider.Name()] = session
		if sel.active == "" {
			sel.active = provider.Name()
		}
	}

	if len(sel.sessions) == 0 {
		cancel()
		return nil, errors.New("no live transcription providers available")
	}

	sel.wg.Add(1)
	go sel.distribute()

	sel.wg.Add(1)
	go sel.selectLoop()

	for name, session := range sel.sessions {
		sel.wg.Add(1)
		go sel.collect(name, session)
	}

	return sel, nil
}

// SendAudio implements providers.Session. After Close it returns
// io.EOF.
func (sel *Selector) SendAudio(audioData []byte) error {
	// Checked first so a send racing with Close fails deterministically
	// instead of landing in a buffer nobody drains.
	select {
	case <-sel.ctx.Done():
		return sel.doneErr()
	default:
	}

	select {
	case sel.audio <- audioData:
		return nil
	case <-sel.ctx.Done():
		return sel.doneErr()
	}
}

func (sel *Selector) doneErr() error {
	if sel.ctx.Err() == context.Canceled {
		return io.EOF
	}
	return sel.ctx.Err()
}

// ReceiveTranscription implements providers.Session.
func (sel *Selector) ReceiveTranscription() (providers.TranscriptionResult, error) {
	select {
	case result := <-sel.out:
		return result, nil
	case <-sel.ctx.Done():
		if sel.ctx.Err() == context.Canceled {
			return providers.TranscriptionResult{}, io.EOF
		}
		return providers.TranscriptionResult{}, sel.ctx.Err()
	}
}

// Close implements providers.Session. It is safe against concurrent
// SendAudio calls; those fail with io.EOF once the context is
// cancelled.
func (sel *Selector) Close() error {
	sel.cancel()

	for name, session := range sel.sessions {
		if err := session.Close(); err != nil {
			sel.log.Printf("Error closing %s session: %v", name, err)
		}
	}

	sel.wg.Wait()
	return nil
}

// distribute copies each audio chunk to every provider session and
// waits until all of them accepted it before taking the next chunk.
// It drains via context cancellation, so the audio channel is never
// closed.
func (sel *Selector) distribute() {
	defer sel.wg.Done()

	for {
		var audioData []byte
		select {
		case audioData = <-sel.audio:
		case <-sel.ctx.Done():
			return
		}

		var wg sync.WaitGroup
		for name, session := range sel.sessions {
			wg.Add(1)
			go func(name string, s providers.Session) {
				defer wg.Done()

				// Each session gets its own copy; providers may hold
				// on to the buffer.
				chunk := make([]byte, len(audioData))
				copy(chunk, audioData)

				if err := s.SendAudio(chunk); err != nil {
					if errors.Is(err, io.EOF) {
						return
					}
					sel.log.Printf("Provider %s audio send failed: %v", name, err)
				}
			}(name, session)
		}
		wg.Wait()
	}
}

// collect pumps one provider's results into the shared result channel.
func (sel *Selector) collect(name string, session providers.Session) {
	defer sel.wg.Done()

	for {
		result, err := session.ReceiveTranscription()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			sel.log.Printf("Provider %s transcription error: %v", name, err)
			return
		}

		select {
		case sel.results <- result:
		case <-sel.ctx.Done():
			return
		}
	}
}

// selectLoop forwards results from the active provider and periodically
// re-picks the active provider by recency. Recency is a stand-in for
// latency: the provider APIs expose no request correlation to measure
// round trips directly.
func (sel *Selector) selectLoop() {
	defer sel.wg.Done()

	ticker := time.NewTicker(selectionWindow)
	defer ticker.Stop()

	for {
		select {
		case result := <-sel.results:
			if !result.IsFinal {
				continue
			}
			sel.lastSeen[result.ProviderName] = result.ReceivedAt

			if result.ProviderName != sel.active {
				continue
			}
			select {
			case sel.out <- result:
			case <-sel.ctx.Done():
				return
			}

		case <-ticker.C:
			sel.repickActive()

		case <-sel.ctx.Done():
			return
		}
	}
}

// repickActive switches to the provider with the most recent final
// result inside the selection window, if it beats the current one.
func (sel *Selector) repickActive() {
	windowStart := time.Now().Add(-selectionWindow)

	best := ""
	bestAt := time.Time{}
	for name, seen := range sel.lastSeen {
		if seen.After(windowStart) && seen.After(bestAt) {
			best = name
			bestAt = seen
		}
	}

	if best != "" && best != sel.active {
		sel.log.Printf("Switching active provider from %s to %s (last result %v)", sel.active, best, bestAt)
		sel.active = best
	}
}
