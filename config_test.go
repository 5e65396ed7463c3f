package rpysight

import "testing"

func TestAppConfigValidateRejectsNonPositiveRows(t *testing.T) {
	cfg := s1Config()
	cfg.Rows = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with rows=0 should return an error")
	}
}

func TestAppConfigValidateRejectsBadFillFraction(t *testing.T) {
	cfg := s1Config()
	cfg.FillFraction = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with fill_fraction=0 should return an error")
	}
	cfg.FillFraction = 150
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with fill_fraction=150 should return an error")
	}
}

func TestAppConfigValidateRequiresTagPeriodFor3D(t *testing.T) {
	cfg := s1Config()
	cfg.Planes = 2
	cfg.TagPeriod = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() for a 3D config with tag_period=0 should return an error")
	}
	cfg.TagPeriod = 50_000
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() for a valid 3D config returned %v", err)
	}
}

func TestAppConfigValidateAcceptsBidirStringVariants(t *testing.T) {
	for _, s := range []string{"", "Unidir", "unidir", "Bidir", "bidir"} {
		cfg := s1Config()
		cfg.BidirString = s
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() with BidirString=%q returned %v", s, err)
		}
	}
	cfg := s1Config()
	cfg.BidirString = "sideways"
	if err := cfg.Validate(); err == nil {
		t.Fatal(`Validate() with BidirString="sideways" should return an error`)
	}
}

func TestAppConfigFrameSpanHalvesForBidir(t *testing.T) {
	cfg := s1Config()
	unidirSpan := cfg.FrameSpan()

	cfg.Bidir = Bidir
	bidirSpan := cfg.FrameSpan()

	if bidirSpan != unidirSpan/2 {
		t.Fatalf("bidir FrameSpan() = %d, want half of unidir's %d", bidirSpan, unidirSpan)
	}
}

func TestInputChannelsBuildSkipsNegativeChannels(t *testing.T) {
	ic := InputChannels{Pmt1: 1, Pmt2: -1, Line: 2}
	inputs := ic.Build()

	if inputs.Lookup(1) != Pmt1 {
		t.Fatalf("Lookup(1) = %v, want Pmt1", inputs.Lookup(1))
	}
	if inputs.Lookup(-1) != Invalid {
		t.Fatalf("Lookup(-1) = %v, want Invalid", inputs.Lookup(-1))
	}
	if inputs.Lookup(2) != Line {
		t.Fatalf("Lookup(2) = %v, want Line", inputs.Lookup(2))
	}
	if inputs.Lookup(42) != Invalid {
		t.Fatalf("Lookup(42) = %v, want Invalid", inputs.Lookup(42))
	}
}
