package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"sitesave/cmd"
	"sitesave/config"
	"sitesave/services"
)

func main() {
	var (
		website string
		server  bool
		port    int
		delay   int
	)

	flag.StringVar(&website, "url", "", "Website URL to mirror and zip")
	flag.BoolVar(&server, "server", false, "Start in web server mode")
	flag.IntVar(&port, "port", 8080, "Port for web server mode")
	flag.IntVar(&delay, "delay", 0, "Seconds to wait between requests")
	flag.Parse()

	// Server mode takes precedence
	if server {
		cmd.StartWebServer(port)
		return
	}

	if website == "" {
		flag.Usage()
		return
	}

	if err := mirrorOnce(website, time.Duration(delay)*time.Second); err != nil {
		log.Fatalf("Error: %s", err)
	}
}

// mirrorOnce mirrors one site synchronously and leaves a zip in the sites
// location, the same artifact server mode produces.
func mirrorOnce(website string, delay time.Duration) error {
	token := uuid.New().String()
	sitesDir := config.GetSitesLocation()
	scratch := filepath.Join(sitesDir, token)

	runner := services.NewWgetRunner(config.GetWgetPath())
	handle, err := runner.Start(context.Background(), website, scratch, services.MirrorOptions{Delay: delay})
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Mirroring "+website),
		progressbar.OptionSpinnerType(14),
	)
	for range handle.Lines() {
		bar.Add(1)
	}
	if err := handle.Wait(); err != nil {
		bar.Finish()
		return err
	}
	bar.Finish()

	log.Println("Converting to ZIP...")
	archivePath := filepath.Join(sitesDir, token+".zip")
	if err := services.NewZipArchiver().Build(scratch, archivePath); err != nil {
		return err
	}
	os.RemoveAll(scratch)

	log.Printf("Archive written to %s", archivePath)
	return nil
}
