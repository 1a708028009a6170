package bot

import (
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

const confirmPrefix = "confirm"

type pendingPrompt struct {
	owner  string
	answer chan bool
}

// prompts routes confirmation button clicks to the command waiting on them.
type prompts struct {
	mu      sync.Mutex
	waiting map[string]pendingPrompt
}

func newPrompts() *prompts {
	return &prompts{waiting: make(map[string]pendingPrompt)}
}

func (p *prompts) open(id, owner string) <-chan bool {
	answer := make(chan bool, 1)
	p.mu.Lock()
	p.waiting[id] = pendingPrompt{owner: owner, answer: answer}
	p.mu.Unlock()
	return answer
}

func (p *prompts) close(id string) {
	p.mu.Lock()
	delete(p.waiting, id)
	p.mu.Unlock()
}

type resolveResult int

const (
	promptResolved resolveResult = iota
	promptUnknown
	promptWrongUser
)

// resolve delivers an answer. Only the user who was prompted can answer, and
// only once.
func (p *prompts) resolve(id, userID string, yes bool) resolveResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending, ok := p.waiting[id]
	if !ok {
		return promptUnknown
	}
	if pending.owner != userID {
		return promptWrongUser
	}
	delete(p.waiting, id)
	pending.answer <- yes
	return promptResolved
}

func confirmButtons(id string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Confirm", Style: discordgo.SuccessButton, CustomID: confirmPrefix + ":" + id + ":yes"},
			discordgo.Button{Label: "Cancel", Style: discordgo.DangerButton, CustomID: confirmPrefix + ":" + id + ":no"},
		}},
	}
}

func parseConfirmID(customID string) (id string, yes bool, ok bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != confirmPrefix {
		return "", false, false
	}
	switch parts[2] {
	case "yes":
		return parts[1], true, true
	case "no":
		return parts[1], false, true
	}
	return "", false, false
}
