package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	yml "gopkg.in/yaml.v2"

	"github.com/labctl/wfslab/console"
	"github.com/labctl/wfslab/imgrec"
	"github.com/labctl/wfslab/thorlabs/wfs"
	"github.com/labctl/wfslab/thorlabs/wfs/sdk"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "wfs-receiver.yml"
	k              = koanf.New(".")
)

type recorder struct {
	// Root is the root folder FITS wavefront maps are written to; empty disables them
	Root string `yaml:"Root" koanf:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix" koanf:"Prefix"`
}

type config struct {
	// Mock uses a simulated sensor instead of the instrument driver
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// DeviceID skips the instrument prompt when not zero
	DeviceID int `yaml:"DeviceID" koanf:"DeviceID"`

	// MLA is the microlens array offered at the prompt; -1 offers none
	MLA int `yaml:"MLA" koanf:"MLA"`

	LogLevel string       `yaml:"LogLevel" koanf:"LogLevel"`
	Settings wfs.Settings `yaml:"Settings" koanf:"Settings"`
	Recorder recorder     `yaml:"Recorder" koanf:"Recorder"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		MLA:      -1,
		LogLevel: "warning",
		Settings: wfs.DefaultSettings(),
		Recorder: recorder{Prefix: "wf"},
	}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			logrus.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `wfs-receiver takes a wavefront measurement from a Thorlabs wavefront sensor
every time the sensor is triggered by an external signal, prints the beam,
wavefront statistics and Zernike fit, and appends each measurement to a
record file.

Usage:
	wfs-receiver <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `wfs-receiver is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.

The values under Settings are the defaults offered at the prompts; press ENTER
at a prompt to accept them.  DeviceID skips the instrument prompt.  A
Zernike order outside 2..10 skips the fit, a Fourier order that is not 2, 4 or
6 or exceeds the Zernike order skips the optometric calculation.

Set Recorder.Root to also write each wavefront as a FITS image, in
<Root>/<date>/<Prefix><number>.fits.

Mock: true runs against a simulated WFS20 and needs no hardware.

Ctrl-C stops the program and closes the instrument.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		logrus.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		logrus.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		logrus.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		logrus.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		logrus.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("wfs-receiver version %v\n", Version)
}

func driver(mock bool) wfs.Driver {
	if mock {
		return wfs.NewMock()
	}
	return sdk.New()
}

// session is the state run needs to close the instrument on the way out
type session struct {
	con    *console.Console
	sensor *wfs.Sensor
}

// exit closes the instrument, waits for ENTER and exits with code
func (s *session) exit(code int, msg string) {
	if s.sensor != nil {
		s.sensor.Close()
	}
	s.con.WaitEnter(msg)
	s.con.Close()
	os.Exit(code)
}

// fatal reports a driver error and exits with status 1
func (s *session) fatal(err error) {
	s.con.Errorf("\nWavefront Sensor Error: %v\n", err)
	s.exit(1, "\nProgram will be closed because of the occured error, press <ENTER>.")
}

// ask prompts and exits quietly when the prompt is aborted
func (s *session) ask(prompt, def string) string {
	in, err := s.con.AskDefault(prompt, def)
	if err != nil {
		s.exit(0, "")
	}
	return in
}

// askInt prompts for an integer and exits quietly when the prompt is aborted
func (s *session) askInt(prompt string, def int) (int, error) {
	n, err := s.con.AskInt(prompt, def)
	if errors.Is(err, console.ErrAborted) {
		s.exit(0, "")
	}
	return n, err
}

func run() {
	cfg := config{}
	if err := k.Unmarshal("", &cfg); err != nil {
		logrus.Fatal(err)
	}
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	drv := driver(cfg.Mock)
	con := console.New()
	s := &session{con: con}

	rev, err := drv.RevisionQuery()
	if err != nil && !wfs.IsWarning(err) {
		s.fatal(err)
	}
	con.Printf("WFS instrument driver version : %s\n\n", rev.Driver)

	entries, err := wfs.Enumerate(drv)
	if err != nil {
		s.fatal(err)
	}
	if len(entries) == 0 {
		con.Warnf("No Wavefront Sensor instrument found!\n")
		s.exit(0, "\nNo instrument selected. Press <ENTER> to exit.\n")
	}
	wfs.WriteInstrumentList(con.Out(), entries)

	id := cfg.DeviceID
	if id == 0 {
		if id, err = s.askInt("\nSelect a Wavefront Sensor instrument: ", 0); err != nil {
			id = 0
		}
	}
	entry, err := wfs.Lookup(entries, id)
	if err != nil {
		s.exit(0, "\nNo instrument selected. Press <ENTER> to exit.\n")
	}
	con.Printf("\nResource name of selected WFS: %s\n", entry.Resource)

	s.sensor, err = wfs.Open(drv, entry, log)
	if err != nil {
		s.fatal(err)
	}
	sensor := s.sensor
	wfs.WriteInstrumentInfo(con.Out(), sensor.Info())

	mlas, err := sensor.MLAs()
	if err != nil {
		s.fatal(err)
	}
	wfs.WriteMLAList(con.Out(), mlas)
	mla, err := s.askInt("\nSelect a Microlens Array: ", cfg.MLA)
	if err != nil || mla < 0 {
		s.exit(0, "\nNo MLA selected. Press <ENTER> to exit.\n")
	}
	if err = sensor.SelectMLA(mla); err != nil {
		s.fatal(err)
	}

	st := cfg.Settings
	fam := sensor.Family()
	if fam.SelectableResolution() {
		def := ""
		if st.ResolutionIndex >= 0 {
			def = strconv.Itoa(st.ResolutionIndex)
		}
		dflt, _ := fam.Resolution(fam.DefaultResolution())
		con.Printf("\n\nChoose the resolution used for %s camera (by default %s):\n", fam, dflt)
		wfs.WriteResolutions(con.Out(), fam)
		st.ResolutionIndex, err = wfs.ParseResolutionIndex(s.ask("", def), fam)
		if err != nil {
			con.Warnf("%v, using the default\n", err)
			st.ResolutionIndex = fam.DefaultResolution()
		}
	} else {
		st.ResolutionIndex = fam.DefaultResolution()
	}
	res, _ := fam.Resolution(st.ResolutionIndex)
	con.Printf("\n\nConfigure %s camera with resolution index %d (%d x %d pixels).\n", fam, st.ResolutionIndex, res.Width, res.Height)
	sx, sy, err := sensor.ConfigureCamera(st.ResolutionIndex)
	if err != nil {
		s.fatal(err)
	}
	con.Printf("Camera is configured to detect %d x %d lenslet spots.\n\n", sx, sy)

	con.Printf("\nDefine pupil to:\n")
	st.Pupil.CenterX = s.askFloat("Centroid_x in mm (by default %.3f): ", st.Pupil.CenterX)
	st.Pupil.CenterY = s.askFloat("\nCentroid_y in mm (by default %.3f): ", st.Pupil.CenterY)
	st.Pupil.DiameterX = s.askFloat("\nDiameter_x in mm (by default %.3f): ", st.Pupil.DiameterX)
	st.Pupil.DiameterY = s.askFloat("\nDiameter_y in mm (by default %.3f): ", st.Pupil.DiameterY)
	con.Printf("Centroid_x = %6.3f\n", st.Pupil.CenterX)
	con.Printf("Centroid_y = %6.3f\n", st.Pupil.CenterY)
	con.Printf("Diameter_x = %6.3f\n", st.Pupil.DiameterX)
	con.Printf("Diameter_y = %6.3f\n", st.Pupil.DiameterY)

	def := "0"
	if st.LimitToPupil {
		def = "1"
	}
	con.Printf("Should the wavefront calculated based on the data limited in the pupil? (1 for Y and 0 for N) (by default %s):\n", def)
	st.LimitToPupil, err = wfs.ParseLimitToPupil(s.ask("", def))
	if err != nil {
		con.Warnf("%v, limiting to the pupil\n", err)
		st.LimitToPupil = true
	}

	con.Printf("Set the highest Zernike Order for fitting; should be between 2 and 10; The fitting will be skipped for invalid values (by default %d):\n", st.ZernikeOrder)
	st.ZernikeOrder = wfs.ParseZernikeOrder(s.ask("", strconv.Itoa(st.ZernikeOrder)))

	con.Printf("Set the highest Zernike Order for calculating Fourier constants; should be 2, 4, or 6 and no more than the highest Zernike order; The calculation will be skipped for invalid values (by default %d):\n", st.FourierOrder)
	st.FourierOrder = wfs.ParseFourierOrder(s.ask("", strconv.Itoa(st.FourierOrder)), st.ZernikeOrder)

	con.Printf("Set the path where the data is saved (by default %s):\n", st.OutputPath)
	if in := s.ask("", ""); strings.TrimSpace(in) != "" {
		st.OutputPath = wfs.ResolveOutputPath(in)
	}

	if err = sensor.Apply(st); err != nil {
		s.fatal(err)
	}
	st = sensor.Settings()
	wfs.WriteReferencePlane(con.Out(), st.ReferencePlane)
	records := wfs.RecordFile{Path: st.OutputPath}
	rec := imgrec.NewRecorder(cfg.Recorder.Root, cfg.Recorder.Prefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	for {
		sp, err := con.Spinner("Waiting for trigger")
		if err != nil {
			s.fatal(err)
		}
		sp.Start()
		m, err := sensor.Capture(ctx, func(polls int) {
			sp.Message(fmt.Sprintf("Waiting for trigger (%d polls)", polls))
		})
		switch {
		case ctx.Err() != nil:
			sp.Fail("interrupted")
			con.Printf("\nClosing the instrument.\n")
			sensor.Close()
			con.Close()
			return
		case errors.Is(err, wfs.ErrUnusableImage):
			sp.Fail(fmt.Sprintf("Status code: 0x%08X", uint32(m.Status)))
			con.Errorf("%v\n", m.Status)
			s.exit(1, "\nProgram will be closed because of unusable image quality, press <ENTER>.")
		case err != nil:
			sp.Fail("measurement failed")
			s.fatal(err)
		}
		sp.Stop(fmt.Sprintf("Status code: 0x%08X", uint32(m.Status)))

		wfs.WriteSummary(con.Out(), m, st.ZernikeOrder)
		if err = records.Append(m); err != nil {
			con.Errorf("file writing error at %s\n", records.Path)
			log.WithError(err).Error("appending record")
		} else {
			con.Infof("data stored at %s\n", records.Path)
		}
		if rec.Active() {
			rows, cols := m.Wavefront.Dims()
			fn, err := rec.Record(sensor.FITSCards(m), m.Wavefront.Flatten(), cols, rows)
			if err != nil {
				con.Errorf("wavefront map not written: %v\n", err)
			} else {
				con.Printf("wavefront map stored at %s\n", fn)
			}
		}
	}
}

// askFloat prompts for a number, keeping def for empty or unparsable input
func (s *session) askFloat(format string, def float64) float64 {
	in := s.ask(fmt.Sprintf(format, def), "")
	f, err := wfs.ParseFloatDefault(in, def)
	if err != nil {
		s.con.Warnf("%q is not a number, using %.3f\n", strings.TrimSpace(in), def)
		return def
	}
	return f
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		logrus.Fatal("unknown command")
	}
}
