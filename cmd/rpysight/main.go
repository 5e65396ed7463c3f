// Command rpysight runs the photon-tag-to-voxel acquisition pipeline.
// Its only argument is a path to a config file (TOML, YAML, or JSON --
// anything viper can parse).
package main

import (
	"flag"
	"log"
	"time"

	"github.com/HagaiHargil/rpysight"
	"github.com/HagaiHargil/rpysight/render"
)

func main() {
	flag.Usage = func() {
		log.Printf("usage: rpysight <config-file>")
	}
	controlPort := flag.Int("control-port", 6598, "TCP port for the JSON-RPC control surface")
	network := flag.String("network", "", "subscribe to a TCP event source at this address instead of reading --input as a file")
	input := flag.String("input", "", "path to a local Arrow IPC event stream file")
	headless := flag.Bool("headless", false, "run without a GPU render window (NullRenderer)")
	queueDepth := flag.Int("queue-depth", 4, "serializer snapshot queue depth")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatal("rpysight: exactly one argument (the config file path) is required")
	}
	configPath := flag.Arg(0)

	cfg, err := rpysight.LoadAppConfig(configPath)
	if err != nil {
		log.Fatalf("rpysight: configuration error: %v", err)
	}

	var source rpysight.Source
	switch {
	case *network != "":
		source = rpysight.NewNetworkSource(*network, 50*time.Millisecond)
	case *input != "":
		source = rpysight.NewFileSource(*input)
	default:
		log.Fatal("rpysight: one of --input or --network is required")
	}

	var renderer rpysight.Renderer
	if *headless {
		renderer = &rpysight.NullRenderer{}
	} else {
		gl, err := render.NewGLRenderer(800, 800, "rpysight")
		if err != nil {
			log.Fatalf("rpysight: could not open render window: %v", err)
		}
		renderer = gl
	}

	app := rpysight.NewAppState(cfg, source, renderer)
	control := rpysight.NewPipelineControl(app)
	app.SetControl(control)
	if err := rpysight.RunControlServer(control, *controlPort, false); err != nil {
		log.Fatalf("rpysight: could not start control server: %v", err)
	}

	if err := app.StartInfAcqLoop(*queueDepth); err != nil {
		log.Fatalf("rpysight: acquisition loop exited with error: %v", err)
	}
}
