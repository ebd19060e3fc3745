package node

import (
	"reflect"
	"testing"
	"time"
)

func TestDefaultCycleConfiguration(t *testing.T) {
	conf := DefaultCycleConfiguration()

	if err := conf.Validate(); err != nil {
		t.Fatalf("default configuration should be valid: %v", err)
	}

	if d := conf.CycleDuration(); d != 20*time.Second {
		t.Fatalf("cycle duration should be 20s, not %s", d)
	}

	expected := []PhaseName{Construction, Campaigning, Voting, Synchronisation}
	if names := conf.OrderedPhaseNames(); !reflect.DeepEqual(names, expected) {
		t.Fatalf("phases should be ordered by offset, got %v", names)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*CycleConfiguration)
	}{
		{"negative offset", func(c *CycleConfiguration) { c.Voting.Offset = -time.Second }},
		{"overfull phase", func(c *CycleConfiguration) { c.Campaigning.CollectionTime = 4 * time.Second }},
		{"empty cycle", func(c *CycleConfiguration) { *c = CycleConfiguration{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := DefaultCycleConfiguration()
			tt.modify(&conf)
			if err := conf.Validate(); err == nil {
				t.Fatalf("configuration should be rejected")
			}
		})
	}
}

func TestPhaseStrings(t *testing.T) {
	if Campaigning.String() != "Campaigning" || Collecting.String() != "Collecting" {
		t.Fatalf("unexpected names %s %s", Campaigning, Collecting)
	}
	if PhaseName(42).String() != "Unknown" {
		t.Fatalf("unknown phase names should print as Unknown")
	}
}

func TestNewCycleConfiguration(t *testing.T) {
	conf := NewCycleConfiguration(5*time.Second, 5*time.Second, 5*time.Second, 5*time.Second)

	if !reflect.DeepEqual(conf, DefaultCycleConfiguration()) {
		t.Fatalf("5s phases should give the default configuration, got %+v", conf)
	}
}
