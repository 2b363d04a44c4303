package dialogue

import (
	"context"

	"github.com/keshucs12345/callsim/internal/persona"
)

var demoScripts = map[persona.Persona][]string{
	persona.Mum: {
		"Hi sweetheart, it's Mum calling. How are you doing?",
		"I was just thinking about you and wanted to check in.",
		"Are you still coming for dinner on Sunday? Dad's making his famous roast.",
		"Oh, and don't forget to call your grandmother, she's been asking about you.",
		"Anyway, I should let you get back to what you were doing. Love you!",
	},
	persona.Boss: {
		"Hi, it's Sarah from the office. Sorry to call you like this.",
		"We've got a situation with the Morrison account that needs immediate attention.",
		"The client just called and they're not happy with the latest proposal.",
		"I really need you to come in and help sort this out. Can you make it within the hour?",
		"I know it's inconvenient, but this could make or break the deal. Thanks.",
	},
	persona.Friend: {
		"Hey! Oh my god, I'm so glad you picked up.",
		"I'm having the worst day ever. My car just died on me.",
		"I'm stuck here at the mall and I have no way to get home.",
		"Could you possibly come get me? I'll totally owe you one.",
		"I tried calling an Uber but it's surge pricing and I'm broke until payday.",
	},
	persona.Custom: {
		"Hello, this is Jennifer from Dr. Martinez's office.",
		"I'm calling about your appointment scheduled for this afternoon.",
		"Unfortunately, we've had an emergency and need to reschedule.",
		"Could you please call us back at your earliest convenience?",
		"Again, I apologize for the short notice. Thank you.",
	},
}

// DemoScript returns the built-in script for p. Unknown personas get the
// custom script. The returned lines may be modified by the caller.
func DemoScript(p persona.Persona) Script {
	lines, ok := demoScripts[p]
	if !ok {
		lines = demoScripts[persona.Custom]
	}
	return newScript(append([]string(nil), lines...), SourceFallback)
}

// Demo is a Generator that always returns the built-in script, for running
// without any dialogue service.
var Demo Generator = GeneratorFunc(func(ctx context.Context, req Request) (Script, error) {
	if err := ctx.Err(); err != nil {
		return Script{}, err
	}
	return DemoScript(req.Persona), nil
})
