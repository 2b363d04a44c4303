package scenario

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/keshucs12345/callsim/internal/persona"
)

var builtin = []Scenario{
	{
		ID:                "mum-dinner",
		Title:             "Mum Checking In",
		Description:       "Sweet and casual check-up call about dinner plans",
		Persona:           persona.Mum,
		Situation:         "Calling to check if you're okay and asking about dinner tonight",
		Urgency:           persona.Low,
		EstimatedDuration: 45,
	},
	{
		ID:                "boss-urgent",
		Title:             "Boss Emergency",
		Description:       "Urgent work matter requiring immediate attention",
		Persona:           persona.Boss,
		Situation:         "Urgent work issue that requires you to leave immediately",
		Urgency:           persona.High,
		EstimatedDuration: 30,
	},
	{
		ID:                "friend-help",
		Title:             "Friend in Trouble",
		Description:       "Close friend needs your help with an emergency",
		Persona:           persona.Friend,
		Situation:         "Friend needs immediate help with a personal emergency",
		Urgency:           persona.High,
		EstimatedDuration: 40,
	},
	{
		ID:                "mum-worried",
		Title:             "Worried Parent",
		Description:       "Concerned parent call about family matter",
		Persona:           persona.Mum,
		Situation:         "Worried about a family situation and needs you home",
		Urgency:           persona.Medium,
		EstimatedDuration: 50,
	},
	{
		ID:                "boss-meeting",
		Title:             "Last-Minute Meeting",
		Description:       "Important client meeting moved up unexpectedly",
		Persona:           persona.Boss,
		Situation:         "Important client meeting has been moved up and you need to attend",
		Urgency:           persona.Medium,
		EstimatedDuration: 35,
	},
	{
		ID:                "friend-pickup",
		Title:             "Emergency Pickup",
		Description:       "Friend stranded and needs immediate pickup",
		Persona:           persona.Friend,
		Situation:         "Stranded somewhere and desperately needs a ride",
		Urgency:           persona.High,
		EstimatedDuration: 25,
	},
	{
		ID:                "doctor-appointment",
		Title:             "Medical Appointment",
		Description:       "Doctor's office calling about rescheduled appointment",
		Persona:           persona.Custom,
		Situation:         "Doctor's office calling about an urgent rescheduled appointment that you must attend today",
		Urgency:           persona.Medium,
		EstimatedDuration: 40,
	},
	{
		ID:                "pet-emergency",
		Title:             "Pet Emergency",
		Description:       "Veterinary emergency requiring immediate attention",
		Persona:           persona.Custom,
		Situation:         "Veterinarian calling about your pet having an emergency and needing you to come immediately",
		Urgency:           persona.High,
		EstimatedDuration: 30,
	},
}

var (
	quickIDs  = []string{"boss-urgent", "friend-help", "mum-worried"}
	casualIDs = []string{"mum-dinner", "boss-meeting", "friend-pickup"}
)

// Catalog is a read-mostly set of named scenarios.
type Catalog struct {
	mu        sync.RWMutex
	scenarios []Scenario
	index     map[string]int
}

// NewCatalog returns a catalog holding the built-in scenarios.
func NewCatalog() *Catalog {
	c := &Catalog{index: make(map[string]int)}
	for _, s := range builtin {
		c.put(s)
	}
	return c
}

// Add validates and inserts s, replacing any scenario with the same ID.
func (c *Catalog) Add(s Scenario) error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidScenario)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("scenario %q: %w", s.ID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(s.Normalized())
	return nil
}

func (c *Catalog) put(s Scenario) {
	if i, ok := c.index[s.ID]; ok {
		c.scenarios[i] = s
		return
	}
	c.index[s.ID] = len(c.scenarios)
	c.scenarios = append(c.scenarios, s)
}

// Get returns the scenario with the given id.
func (c *Catalog) Get(id string) (Scenario, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return Scenario{}, false
	}
	return c.scenarios[i], true
}

// All returns every scenario in insertion order.
func (c *Catalog) All() []Scenario {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Scenario, len(c.scenarios))
	copy(out, c.scenarios)
	return out
}

// ByPersona returns the scenarios voiced by p.
func (c *Catalog) ByPersona(p persona.Persona) []Scenario {
	return c.filter(func(s Scenario) bool { return s.Persona == p })
}

// ByUrgency returns the scenarios at urgency u.
func (c *Catalog) ByUrgency(u persona.Urgency) []Scenario {
	return c.filter(func(s Scenario) bool { return s.Urgency == u })
}

// Quick returns the scenarios suited to getting out of a situation fast.
func (c *Catalog) Quick() []Scenario { return c.pick(quickIDs) }

// Casual returns the low-pressure scenarios.
func (c *Catalog) Casual() []Scenario { return c.pick(casualIDs) }

func (c *Catalog) filter(keep func(Scenario) bool) []Scenario {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Scenario
	for _, s := range c.scenarios {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func (c *Catalog) pick(ids []string) []Scenario {
	out := make([]Scenario, 0, len(ids))
	for _, id := range ids {
		if s, ok := c.Get(id); ok {
			out = append(out, s)
		}
	}
	return out
}

type catalogFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadFile merges the scenarios listed in a YAML file into c.
//
//	scenarios:
//	  - id: landlord
//	    persona: custom
//	    situation: Burst pipe in the flat upstairs
//	    urgency: high
func (c *Catalog) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read scenarios file: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse scenarios file %q: %w", path, err)
	}
	for _, s := range f.Scenarios {
		if err := c.Add(s); err != nil {
			return 0, err
		}
	}
	return len(f.Scenarios), nil
}
