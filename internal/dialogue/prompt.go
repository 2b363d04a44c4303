package dialogue

import (
	"fmt"
	"math"
	"time"

	"github.com/keshucs12345/callsim/internal/persona"
)

// DefaultTargetDuration is used when a request has no target duration.
const DefaultTargetDuration = 30 * time.Second

// SystemPrompt frames every generation request.
const SystemPrompt = "You are an AI that generates realistic phone call scripts for emergency exit situations. " +
	"Create natural, believable dialogue with realistic pauses and interruptions."

var personaPrompts = map[persona.Persona]string{
	persona.Mum:    "You are calling as the user's concerned mother. You need to check if they're okay and ask about dinner plans. Speak warmly and naturally.",
	persona.Boss:   "You are calling as the user's boss with an urgent work matter that requires them to leave immediately. Be professional but insistent.",
	persona.Friend: "You are calling as the user's close friend who needs immediate help with an emergency situation. Sound worried but not panicked.",
}

var urgencyModifiers = map[persona.Urgency]string{
	persona.Low:    "Keep the conversation casual and relaxed.",
	persona.Medium: "Add some urgency but remain natural.",
	persona.High:   "Make it sound urgent and important, requiring immediate attention.",
}

const promptBody = `%s %s

Create a realistic phone conversation script with:
- Natural dialogue with pauses and interruptions
- The caller should continue naturally even if the user stays silent
- Keep it believable and not overly dramatic
- Duration should be around %d seconds

IMPORTANT: Only provide the actual spoken dialogue. Do NOT include:
- Background sound descriptions (like "pause", "typing sounds", etc.)
- Stage directions or actions in parentheses
- Sound effects or ambient noise descriptions

Format the response as a series of dialogue lines that the AI caller will speak.`

// BuildPrompt returns the user prompt for req. The custom persona is
// described by the request's situation.
func BuildPrompt(req Request) string {
	who, ok := personaPrompts[req.Persona]
	if !ok {
		who = req.Situation
	}
	urgency, ok := urgencyModifiers[req.Urgency]
	if !ok {
		urgency = urgencyModifiers[persona.Medium]
	}
	target := req.TargetDuration
	if target <= 0 {
		target = DefaultTargetDuration
	}
	return fmt.Sprintf(promptBody, who, urgency, int(math.Round(target.Seconds())))
}
