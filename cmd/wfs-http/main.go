package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/sirupsen/logrus"
	yml "gopkg.in/yaml.v2"

	"github.com/labctl/wfslab/generichttp"
	"github.com/labctl/wfslab/imgrec"
	"github.com/labctl/wfslab/server/middleware/locker"
	"github.com/labctl/wfslab/thorlabs/wfs"
	"github.com/labctl/wfslab/thorlabs/wfs/sdk"
	"github.com/labctl/wfslab/util"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "wfs-http.yml"
	k              = koanf.New(".")
)

type recorder struct {
	// Root is the root folder to write FITS wavefront maps to
	Root string `yaml:"Root" koanf:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix" koanf:"Prefix"`
}

type config struct {
	Addr string `yaml:"Addr" koanf:"Addr"`
	Root string `yaml:"Root" koanf:"Root"`

	// Mock uses a simulated sensor instead of the instrument driver
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// DeviceID selects the instrument; 0 uses SensorIndex instead
	DeviceID int `yaml:"DeviceID" koanf:"DeviceID"`

	// SensorIndex is the position in the instrument list
	SensorIndex int `yaml:"SensorIndex" koanf:"SensorIndex"`

	MLA int `yaml:"MLA" koanf:"MLA"`

	// RecordFile receives one record line per measurement; empty disables it
	RecordFile string `yaml:"RecordFile" koanf:"RecordFile"`

	LogLevel string       `yaml:"LogLevel" koanf:"LogLevel"`
	Settings wfs.Settings `yaml:"Settings" koanf:"Settings"`
	Recorder recorder     `yaml:"Recorder" koanf:"Recorder"`
}

func defaults() config {
	st := wfs.DefaultSettings()
	st.ResolutionIndex = 1
	st.Pupil.DiameterX = 4.5
	st.Pupil.DiameterY = 4.5
	st.FourierOrder = 2
	return config{
		Addr:       ":8000",
		Root:       "/",
		RecordFile: st.OutputPath,
		LogLevel:   "info",
		Settings:   st,
		Recorder:   recorder{Prefix: "wf"},
	}
}

func setupconfig() {
	k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			logrus.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `wfs-http exposes control of Thorlabs wavefront sensors over HTTP
This enables a server-client architecture,
and the clients (the labscript BLACS worker, or anything else) can leverage
the excellent HTTP libraries for any programming language,
instead of linking the instrument driver.

Usage:
	wfs-http <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `wfs-http is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.

The sensor is chosen by DeviceID, or when that is 0 by its SensorIndex in the
instrument list.  Run wfs-checker to see both, and the MLA indices.

Settings are applied at bootup.  wfs-http watches its configuration file and
re-applies Settings whenever it changes; the other keys need a restart.

POST /measure waits for the next trigger, bounded by ?timeout= (seconds or a
Go duration).  GET /route-list lists every route.  POST /lock {"bool": true}
rejects changes from other clients with 423 until unlocked.`
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
	fmt.Printf("wfs-http version %v\n", Version)
}

func driver(mock bool) wfs.Driver {
	if mock {
		return wfs.NewMock()
	}
	return sdk.New()
}

// pick finds the configured instrument in the list
func pick(entries []wfs.ListEntry, cfg config) (wfs.ListEntry, error) {
	if len(entries) == 0 {
		return wfs.ListEntry{}, wfs.ErrNoInstrument
	}
	if cfg.DeviceID != 0 {
		return wfs.Lookup(entries, cfg.DeviceID)
	}
	if cfg.SensorIndex < 0 || cfg.SensorIndex >= len(entries) {
		return wfs.ListEntry{}, fmt.Errorf("sensor index %d out of range [0,%d]", cfg.SensorIndex, len(entries)-1)
	}
	return entries[cfg.SensorIndex], nil
}

// setup opens the configured sensor, selects its MLA and applies the
// settings.  The sensor is closed again if any step fails.
func setup(drv wfs.Driver, cfg config, log logrus.FieldLogger) (*wfs.Sensor, error) {
	entries, err := wfs.Enumerate(drv)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(entries))
	for i, e := range entries {
		ids[i] = e.DeviceID
	}
	log.WithField("deviceIDs", util.IntSliceToCSV(ids)).Info("instrument list")
	entry, err := pick(entries, cfg)
	if err != nil {
		return nil, err
	}
	s, err := wfs.Open(drv, entry, log)
	if err != nil {
		return nil, err
	}
	if err = s.SelectMLA(cfg.MLA); err == nil {
		err = s.Apply(cfg.Settings)
	}
	if err != nil {
		if cerr := s.Close(); cerr != nil {
			log.WithError(cerr).Error("closing sensor")
		}
		return nil, err
	}
	return s, nil
}

// watch re-applies the Settings section when the config file changes
func watch(s *wfs.Sensor, log logrus.FieldLogger) {
	f := file.Provider(ConfigFileName)
	err := f.Watch(func(event interface{}, err error) {
		if err != nil {
			log.WithError(err).Error("watching config file")
			return
		}
		kk := koanf.New(".")
		kk.Load(structs.Provider(defaults(), "koanf"), nil)
		if err := kk.Load(f, yaml.Parser()); err != nil {
			log.WithError(err).Error("reloading config file")
			return
		}
		st := wfs.Settings{}
		if err := kk.Unmarshal("Settings", &st); err != nil {
			log.WithError(err).Error("decoding settings")
			return
		}
		if err := s.Apply(st); err != nil {
			log.WithError(err).Error("applying reloaded settings")
			return
		}
		log.Info("re-applied settings from ", ConfigFileName)
	})
	if err != nil {
		log.WithError(err).Warn("config file not watched")
	}
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

	s, err := setup(driver(cfg.Mock), cfg, log)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := os.Stat(ConfigFileName); err == nil {
		watch(s, log)
	}

	var records *wfs.RecordFile
	if cfg.RecordFile != "" {
		records = &wfs.RecordFile{Path: cfg.RecordFile}
	}
	rec := imgrec.NewRecorder(cfg.Recorder.Root, cfg.Recorder.Prefix)
	w := wfs.NewHTTPWrapper(s, records, rec)
	lock := locker.New()
	locker.Inject(w, lock)

	// clean up the submux string
	hndlrS := generichttp.SubMuxSanitize(cfg.Root)
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	mux := chi.NewRouter()
	mux.Use(lock.Check)
	root.Mount(hndlrS, mux)
	w.RT().Bind(mux)
	addr := cfg.Addr + cfg.Root
	log.Println("now listening for requests at ", addr)
	err = http.ListenAndServe(cfg.Addr, root)
	log.WithError(err).Error("server stopped")
	s.Close()
	os.Exit(1)
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
