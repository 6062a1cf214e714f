// Package cmd dispatches the synchrosm sub commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/openstreetmap-polska/synchrosm"
	"github.com/openstreetmap-polska/synchrosm/compare"
	"github.com/openstreetmap-polska/synchrosm/config"
	"github.com/openstreetmap-polska/synchrosm/database"
	_ "github.com/openstreetmap-polska/synchrosm/database/badgerdb"
	_ "github.com/openstreetmap-polska/synchrosm/database/postgres"
	"github.com/openstreetmap-polska/synchrosm/download"
	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/import_"
	"github.com/openstreetmap-polska/synchrosm/log"
	"github.com/openstreetmap-polska/synchrosm/osmapi"
	"github.com/openstreetmap-polska/synchrosm/overpass"
)

func PrintCmds() {
	fmt.Fprintf(os.Stderr, "Usage: %s COMMAND [args]\n\n", os.Args[0])
	fmt.Println("Available commands:")
	fmt.Println("\tdownload")
	fmt.Println("\tcompare")
	fmt.Println("\timport")
	fmt.Println("\tversion")
}

func Main(usage func()) {
	if len(os.Args) <= 1 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "download":
		config.ParseDownload(os.Args[2:])
		Download()
	case "compare":
		config.ParseCompare(os.Args[2:])
		Compare()
	case "import":
		config.ParseImport(os.Args[2:])
		Import()
	case "version":
		fmt.Println(synchrosm.Version)
		os.Exit(0)
	default:
		usage()
		log.Fatalf("invalid command: '%s'", os.Args[1])
	}
	os.Exit(0)
}

func Download() {
	if config.BaseOptions.Quiet {
		log.SetQuiet(true)
	}
	store := openStore()
	defer store.Close()

	opts := download.Options{PBFFile: config.DownloadOptions.Read}
	if config.DownloadOptions.Profile != "" {
		profile, err := config.LoadProfile(config.DownloadOptions.Profile)
		if err != nil {
			log.Fatal(err)
		}
		opts.Query = profile.Query
		opts.QueryFile = profile.QueryFile
	}

	client := &overpass.Client{URL: config.BaseOptions.OverpassURL}
	if err := download.Run(context.Background(), store, client, opts); err != nil {
		log.Fatal(err)
	}
}

func Compare() {
	if config.BaseOptions.Quiet {
		log.SetQuiet(true)
	}
	store := openStore()
	defer store.Close()

	client := &osmapi.Client{
		URL:      config.BaseOptions.OSMAPIURL,
		User:     config.BaseOptions.User,
		Password: config.BaseOptions.Password,
	}
	opts := compare.Options{
		Limit:  config.CompareOptions.Limit,
		Update: config.CompareOptions.Update,
	}
	results, err := compare.Run(context.Background(), store, client, opts)
	if err != nil {
		log.Fatal(err)
	}
	for _, comparison := range results.NewVersion {
		fmt.Printf("%s -> %s\n", comparison.Old, comparison.New)
	}
}

func Import() {
	if config.BaseOptions.Quiet {
		log.SetQuiet(true)
	}
	profile, err := config.LoadProfile(config.ImportOptions.Profile)
	if err != nil {
		log.Fatal(err)
	}
	objects, err := import_.ReadObjects(config.ImportOptions.Objects)
	if err != nil {
		log.Fatal(err)
	}

	store := openStore()
	defer store.Close()

	client := &overpass.Client{URL: config.BaseOptions.OverpassURL}
	editor := &osmapi.Client{
		URL:      config.BaseOptions.OSMAPIURL,
		User:     config.BaseOptions.User,
		Password: config.BaseOptions.Password,
	}
	opts := import_.Options{
		Download: download.Options{
			Query:     profile.Query,
			QueryFile: profile.QueryFile,
			PBFFile:   config.ImportOptions.Read,
		},
		IDTag:         profile.IDTag,
		SearchRadius:  profile.SearchRadius,
		ChangesetTags: profile.ChangesetTags,
		NodeTags:      profile.NodeTags,
	}
	if opts.Download.PBFFile != "" {
		// the extract replaces the Overpass query
		opts.Download.Query = ""
		opts.Download.QueryFile = ""
	}

	results, err := import_.Run(context.Background(), store, client, editor, objects, opts)
	if err != nil {
		log.Fatal(err)
	}
	printObjects("already in OSM", results.AlreadyPresent)
	printObjects("imported", results.Imported)
}

func printObjects(label string, objects []element.Object) {
	fmt.Printf("%s (%d):\n", label, len(objects))
	for _, obj := range objects {
		fmt.Printf("\t%s at %.5f %.5f\n", obj.ID, obj.Lat, obj.Long)
	}
}

func openStore() database.Store {
	conf := database.Config{
		Type:             database.ConnectionType(config.BaseOptions.Connection),
		ConnectionParams: config.BaseOptions.Connection,
	}
	store, err := database.Open(conf)
	if err != nil {
		log.Fatalf("opening store: %s", err)
	}
	return store
}
