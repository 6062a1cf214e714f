package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/openstreetmap-polska/synchrosm/log"
)

// Config is the optional JSON configuration file. Command line flags
// take precedence over its values.
type Config struct {
	Connection  string `json:"connection"`
	OverpassURL string `json:"overpass_url"`
	OSMAPIURL   string `json:"osmapi_url"`
}

const defaultConnection = "badger://synchrosm.db"

var DownloadFlags = flag.NewFlagSet("download", flag.ExitOnError)
var CompareFlags = flag.NewFlagSet("compare", flag.ExitOnError)
var ImportFlags = flag.NewFlagSet("import", flag.ExitOnError)

type _BaseOptions struct {
	Connection  string
	OverpassURL string
	OSMAPIURL   string
	User        string
	Password    string
	ConfigFile  string
	Quiet       bool
}

func (o *_BaseOptions) updateFromConfig() error {
	// credentials and connection can come from the environment,
	// optionally via a .env file
	_ = godotenv.Load()

	conf := &Config{}
	if o.ConfigFile != "" {
		f, err := os.Open(o.ConfigFile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&conf); err != nil {
			return err
		}
	}

	if o.Connection == defaultConnection {
		if conf.Connection != "" {
			o.Connection = conf.Connection
		} else if env := os.Getenv("SYNCHROSM_CONNECTION"); env != "" {
			o.Connection = env
		}
	}
	if o.OverpassURL == "" {
		o.OverpassURL = conf.OverpassURL
	}
	if o.OSMAPIURL == "" {
		o.OSMAPIURL = conf.OSMAPIURL
	}
	if o.User == "" {
		o.User = os.Getenv("OSM_API_USER")
	}
	if o.Password == "" {
		o.Password = os.Getenv("OSM_API_PASS")
	}
	return nil
}

func (o *_BaseOptions) check() []error {
	errs := []error{}
	if o.Connection == "" {
		errs = append(errs, errors.New("missing connection"))
	}
	return errs
}

type _DownloadOptions struct {
	Profile string
	Read    string
}

func (o *_DownloadOptions) check() []error {
	errs := []error{}
	if o.Profile == "" && o.Read == "" {
		errs = append(errs, errors.New("missing -profile or -read"))
	}
	if o.Profile != "" && o.Read != "" {
		errs = append(errs, errors.New("-profile and -read are mutually exclusive"))
	}
	return errs
}

type _CompareOptions struct {
	Limit  int
	Update bool
}

type _ImportOptions struct {
	Profile string
	Objects string
	Read    string
}

func (o *_ImportOptions) check() []error {
	errs := []error{}
	if o.Profile == "" {
		errs = append(errs, errors.New("missing -profile"))
	}
	if o.Objects == "" {
		errs = append(errs, errors.New("missing -objects"))
	}
	return errs
}

var BaseOptions = _BaseOptions{}
var DownloadOptions = _DownloadOptions{}
var CompareOptions = _CompareOptions{}
var ImportOptions = _ImportOptions{}

func addBaseFlags(flags *flag.FlagSet) {
	flags.StringVar(&BaseOptions.Connection, "connection", defaultConnection, "store connection, badger://<path> or postgres://<url>")
	flags.StringVar(&BaseOptions.OverpassURL, "overpassurl", "", "Overpass interpreter endpoint")
	flags.StringVar(&BaseOptions.OSMAPIURL, "osmapiurl", "", "OSM API server")
	flags.StringVar(&BaseOptions.User, "user", "", "OSM API user name")
	flags.StringVar(&BaseOptions.Password, "password", "", "OSM API password")
	flags.StringVar(&BaseOptions.ConfigFile, "config", "", "config (json)")
	flags.BoolVar(&BaseOptions.Quiet, "quiet", false, "quiet log output")
}

func UsageDownload() {
	fmt.Fprintf(os.Stderr, "Usage: %s %s [args]\n\n", os.Args[0], os.Args[1])
	DownloadFlags.PrintDefaults()
	os.Exit(2)
}

func UsageCompare() {
	fmt.Fprintf(os.Stderr, "Usage: %s %s [args]\n\n", os.Args[0], os.Args[1])
	CompareFlags.PrintDefaults()
	os.Exit(2)
}

func UsageImport() {
	fmt.Fprintf(os.Stderr, "Usage: %s %s [args]\n\n", os.Args[0], os.Args[1])
	ImportFlags.PrintDefaults()
	os.Exit(2)
}

func init() {
	DownloadFlags.Usage = UsageDownload
	CompareFlags.Usage = UsageCompare
	ImportFlags.Usage = UsageImport

	addBaseFlags(DownloadFlags)
	DownloadFlags.StringVar(&DownloadOptions.Profile, "profile", "", "profile (yaml) with the Overpass query")
	DownloadFlags.StringVar(&DownloadOptions.Read, "read", "", "seed from a local OSM PBF extract")

	addBaseFlags(CompareFlags)
	CompareFlags.IntVar(&CompareOptions.Limit, "limit", 300, "max nodes to check per run, 0 checks all")
	CompareFlags.BoolVar(&CompareOptions.Update, "update", false, "write newer versions back to the store")

	addBaseFlags(ImportFlags)
	ImportFlags.StringVar(&ImportOptions.Profile, "profile", "", "profile (yaml) with query and matching parameters")
	ImportFlags.StringVar(&ImportOptions.Objects, "objects", "", "objects to import (json)")
	ImportFlags.StringVar(&ImportOptions.Read, "read", "", "refresh from a local OSM PBF extract instead of Overpass")
}

func ParseDownload(args []string) {
	if len(args) == 0 {
		UsageDownload()
	}
	if err := DownloadFlags.Parse(args); err != nil {
		log.Fatal(err)
	}
	if err := BaseOptions.updateFromConfig(); err != nil {
		log.Fatal(err)
	}
	errs := BaseOptions.check()
	errs = append(errs, DownloadOptions.check()...)
	if len(errs) != 0 {
		reportErrors(errs)
		UsageDownload()
	}
}

func ParseCompare(args []string) {
	if err := CompareFlags.Parse(args); err != nil {
		log.Fatal(err)
	}
	if err := BaseOptions.updateFromConfig(); err != nil {
		log.Fatal(err)
	}
	errs := BaseOptions.check()
	if len(errs) != 0 {
		reportErrors(errs)
		UsageCompare()
	}
}

func ParseImport(args []string) {
	if len(args) == 0 {
		UsageImport()
	}
	if err := ImportFlags.Parse(args); err != nil {
		log.Fatal(err)
	}
	if err := BaseOptions.updateFromConfig(); err != nil {
		log.Fatal(err)
	}
	errs := BaseOptions.check()
	errs = append(errs, ImportOptions.check()...)
	if len(errs) != 0 {
		reportErrors(errs)
		UsageImport()
	}
}

func reportErrors(errs []error) {
	fmt.Println("errors in config/options:")
	for _, err := range errs {
		fmt.Printf("\t%s\n", err)
	}
	os.Exit(1)
}
