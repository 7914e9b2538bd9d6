package phrase

// GroupDump describes one lattice group for inspection.
type GroupDump struct {
	Slot       string   `yaml:"slot,omitempty"`
	Forms      []string `yaml:"forms"`
	Classifier bool     `yaml:"classifier,omitempty"`
}

// Dump describes a trained model for inspection.
type Dump struct {
	Name   string      `yaml:"name"`
	Locale string      `yaml:"locale"`
	Hash   int32       `yaml:"hash"`
	Groups []GroupDump `yaml:"groups"`
}

// Dump returns a printable description of the lattice.
func (p *Phrase) Dump() Dump {
	d := Dump{Name: p.name, Locale: p.locale.String(), Hash: p.hash}
	for g, group := range p.groups {
		gd := GroupDump{Slot: p.groupToTag[g], Classifier: p.models[g] != nil}
		for _, f := range group.Forms {
			gd.Forms = append(gd.Forms, f.String())
		}
		d.Groups = append(d.Groups, gd)
	}
	return d
}

// DecisionCount returns how many groups are resolved by a classifier.
func (p *Phrase) DecisionCount() int {
	n := 0
	for _, m := range p.models {
		if m != nil {
			n++
		}
	}
	return n
}
