package main

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/labctl/wfslab/thorlabs/wfs"
)

func TestPick(t *testing.T) {
	entries := wfs.NewMock().Instruments
	cfg := defaults()

	e, err := pick(entries, cfg)
	if err != nil || e.DeviceID != wfs.OffsetWFS20 {
		t.Errorf("sensor index 0 gave %+v, %v", e, err)
	}

	cfg.SensorIndex = 1
	if e, _ = pick(entries, cfg); e.Serial != "M00000002" {
		t.Errorf("sensor index 1 gave %+v", e)
	}
	cfg.SensorIndex = 2
	if _, err = pick(entries, cfg); err == nil {
		t.Error("expected an error for sensor index 2 of 2")
	}

	cfg.DeviceID = wfs.OffsetWFS20
	if e, err = pick(entries, cfg); err != nil || e.Serial != "M00000001" {
		t.Errorf("device ID lookup gave %+v, %v", e, err)
	}
	cfg.DeviceID = 9
	if _, err = pick(entries, cfg); !errors.Is(err, wfs.ErrNotListed) {
		t.Errorf("unknown device ID gave %v", err)
	}

	if _, err = pick(nil, cfg); err != wfs.ErrNoInstrument {
		t.Errorf("empty list gave %v", err)
	}
}

func TestDefaultsAreValid(t *testing.T) {
	st := defaults().Settings.Normalize()
	if err := st.Validate(); err != nil {
		t.Fatal(err)
	}
	if st.FourierOrder != 2 || st.ResolutionIndex != 1 {
		t.Errorf("server defaults %+v", st)
	}
}

func TestSetupClosesSensorOnFailure(t *testing.T) {
	log, _ := test.NewNullLogger()
	badMLA := defaults()
	badMLA.MLA = 7
	badRes := defaults()
	badRes.Settings.ResolutionIndex = 99
	for name, cfg := range map[string]config{"mla": badMLA, "resolution": badRes} {
		t.Run(name, func(t *testing.T) {
			m := wfs.NewMock()
			s, err := setup(m, cfg, log)
			if err == nil || s != nil {
				t.Fatalf("setup() = %v, %v, want an error", s, err)
			}
			if m.Instruments[0].InUse {
				t.Error("sensor left open after a failed setup")
			}
			if last := m.Calls[len(m.Calls)-1]; last != "WFS_close" {
				t.Errorf("last driver call %s, want WFS_close", last)
			}
		})
	}
}

func TestSetupLeavesSensorOpen(t *testing.T) {
	log, _ := test.NewNullLogger()
	m := wfs.NewMock()
	s, err := setup(m, defaults(), log)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if !m.Instruments[0].InUse {
		t.Error("sensor not marked in use after setup")
	}
}
