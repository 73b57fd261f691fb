package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/sirupsen/logrus"
	yml "gopkg.in/yaml.v2"

	"github.com/labctl/wfslab/console"
	"github.com/labctl/wfslab/thorlabs/usbscan"
	"github.com/labctl/wfslab/thorlabs/wfs"
	"github.com/labctl/wfslab/thorlabs/wfs/sdk"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "wfs-checker.yml"
	k              = koanf.New(".")
)

type config struct {
	// Mock uses a simulated sensor instead of the instrument driver
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// ScanUSB lists Thorlabs devices on the USB bus when the driver finds no instrument
	ScanUSB bool `yaml:"ScanUSB" koanf:"ScanUSB"`

	LogLevel string `yaml:"LogLevel" koanf:"LogLevel"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		ScanUSB:  true,
		LogLevel: "warning",
	}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			logrus.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `wfs-checker lists the connected Thorlabs wavefront sensors and the
microlens arrays and camera resolutions of one of them.  Use it to find
the sensorIndex and MLA index the labscript connection table and
wfs-http need.

Usage:
	wfs-checker <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `wfs-checker is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.

Do not run BLACS or wfs-http while running wfs-checker; an instrument can
only be opened by one program at a time and shows as (inUse) otherwise.

With ScanUSB, wfs-checker also scans the USB bus when the instrument
driver finds nothing, to tell an unplugged sensor from a driver problem.`
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
	fmt.Printf("wfs-checker version %v\n", Version)
}

func driver(mock bool) wfs.Driver {
	if mock {
		return wfs.NewMock()
	}
	return sdk.New()
}

func scanUSB(con *console.Console) {
	devs, err := usbscan.Scan()
	if err != nil {
		con.Warnf("USB scan failed: %v\n", err)
		return
	}
	if len(devs) == 0 {
		con.Printf("No Thorlabs device on the USB bus.\n")
		return
	}
	con.Printf("Thorlabs devices on the USB bus:\n")
	for _, d := range devs {
		con.Printf("  %s\n", d)
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

	drv := driver(cfg.Mock)
	con := console.New()
	defer con.Close()
	var sensor *wfs.Sensor
	fatal := func(err error) {
		con.Errorf("\nWavefront Sensor Error: %v\n", err)
		if sensor != nil {
			sensor.Close()
		}
		con.WaitEnter("\nProgram will be closed because of the occured error, press <ENTER>.")
		con.Close()
		os.Exit(1)
	}

	con.Printf("This executable is used to specifies the sensorIndex put in the connection table as well as the MLA index used for labscript implementation.\n")
	con.Warnf("Do not run BLACS while running this software otherwise one of them would not function properly.\n")
	con.WaitEnter("Press <ENTER> to continue.\n")

	rev, err := drv.RevisionQuery()
	if err != nil && !wfs.IsWarning(err) {
		fatal(err)
	}
	con.Printf("WFS instrument driver version : %s\n\n", rev.Driver)

	entries, err := wfs.Enumerate(drv)
	if err != nil {
		fatal(err)
	}
	if len(entries) == 0 {
		con.Warnf("No Wavefront Sensor instrument found!\n")
		if cfg.ScanUSB {
			scanUSB(con)
		}
		con.WaitEnter("\nNo instrument selected. Press <ENTER> to exit.\n")
		return
	}
	wfs.WriteInstrumentList(con.Out(), entries)

	in, err := con.Ask("\nSelect a Wavefront Sensor instrument for its MLA info: ")
	if err != nil {
		return
	}
	id, _ := strconv.Atoi(strings.TrimSpace(in))
	entry, err := wfs.Lookup(entries, id)
	if err != nil {
		con.WaitEnter("\nNo instrument selected. Press <ENTER> to exit.\n")
		return
	}
	con.Printf("\nResource name of selected WFS: %s\n", entry.Resource)

	sensor, err = wfs.Open(drv, entry, log)
	if err != nil {
		fatal(err)
	}
	wfs.WriteInstrumentInfo(con.Out(), sensor.Info())

	mlas, err := sensor.MLAs()
	if err != nil {
		fatal(err)
	}
	wfs.WriteMLAList(con.Out(), mlas)

	if fam := sensor.Family(); fam == wfs.FamilyWFS20 || fam == wfs.FamilyWFS30 {
		con.Printf("\n\nResolution index for %s camera:\n", fam)
		wfs.WriteResolutions(con.Out(), fam)
	}

	sensor.Close()
	con.WaitEnter("Press <ENTER> to exit.")
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
