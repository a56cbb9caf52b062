// Daqdump acquires blocks from one configured device and optionally dumps
// them to a .npy file. It is the reference polling consumer for the godaq
// adapters: one loop, one Read per block, stop on SIGINT.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/intellsensing/godaq"
	"github.com/intellsensing/godaq/blockfile"
	"github.com/intellsensing/godaq/daqdb"
	"github.com/intellsensing/godaq/ringbuffer"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

type dumpOptions struct {
	device   string
	channels string
	rate     float64
	nsamp    int
	nblocks  int
	output   string
	recordDB bool
}

var opt dumpOptions

func parseOptions() error {
	flag.StringVar(&opt.device, "device", "sim", "device kind: sim, task, ring, armband, pins, tcp, udp")
	flag.StringVar(&opt.channels, "channels", "0,1", "comma-separated channel/pin identifiers")
	flag.Float64Var(&opt.rate, "rate", 1000, "nominal sample rate (Hz)")
	flag.IntVar(&opt.nsamp, "nsamp", 100, "samples per channel per read")
	flag.IntVar(&opt.nblocks, "n", 0, "number of blocks to acquire (<=0 means run until interrupted)")
	flag.StringVar(&opt.output, "o", "", "output .npy filename")
	flag.BoolVar(&opt.recordDB, "db", false, "record the session in the database")
	flag.Parse()

	if opt.nsamp < 1 {
		return fmt.Errorf("nsamp (%d) must be at least 1", opt.nsamp)
	}
	return nil
}

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err2 := os.MkdirAll(dir, 0775); err2 != nil {
			return "", err2
		}
	}
	fullname := path.Join(dir, filename)
	_, err := os.Stat(fullname)
	if os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper sets up the viper configuration manager: says where to find
// config files and the filename and suffix. Sets some defaults.
func setupViper() error {
	viper.SetDefault("Verbose", false)
	viper.SetDefault("TaskDevnum", 0)
	viper.SetDefault("TaskNchan", 4)
	viper.SetDefault("RingNchan", 8)
	viper.SetDefault("RingShmName", "neuro_buffer")
	viper.SetDefault("RingShmDesc", "neuro_description")
	viper.SetDefault("HubEndpoint", "tcp://127.0.0.1:6110")
	viper.SetDefault("HubSDKPath", "")
	viper.SetDefault("SerialPort", "/dev/ttyACM0")
	viper.SetDefault("SerialBaud", 57600)
	viper.SetDefault("SocketAddr", "127.0.0.1:9220")
	viper.SetDefault("SocketFrameLen", 8)

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dotGodaq := filepath.Join(home, ".godaq")
	const filename string = "config"
	const suffix string = ".yaml"
	if _, err := makeFileExist(dotGodaq, filename+suffix); err != nil {
		return err
	}

	viper.SetConfigName(filename)
	viper.AddConfigPath(filepath.FromSlash("/etc/godaq"))
	viper.AddConfigPath(dotGodaq)
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

func startLogger(pfname string) *log.Logger {
	probFile, err := os.OpenFile(pfname, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Could not open log file '%s'", pfname))
	}
	probLogger := log.New(probFile, "", log.LstdFlags)
	probLogger.SetOutput(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	})
	return probLogger
}

func parseChannels(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	channels := make([]int, 0, len(parts))
	for _, p := range parts {
		var ch int
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d", &ch); err != nil {
			return nil, fmt.Errorf("bad channel %q", p)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// openDevice constructs the adapter named by opt.device, with backend
// parameters taken from the viper config.
func openDevice(cfg godaq.Config) (godaq.Device, error) {
	switch opt.device {
	case "sim":
		return godaq.NewSimulatedDevice(cfg, 0, 1)
	case "task":
		backend, err := godaq.OpenDeviceFile(viper.GetInt("TaskDevnum"), viper.GetInt("TaskNchan"))
		if err != nil {
			return nil, err
		}
		return godaq.NewTaskDevice(cfg, backend)
	case "ring":
		backend, err := ringbuffer.OpenSnapshotReader(
			viper.GetString("RingShmName"), viper.GetString("RingShmDesc"), viper.GetInt("RingNchan"))
		if err != nil {
			return nil, err
		}
		return godaq.NewRingDevice(cfg, backend)
	case "armband":
		if err := godaq.InitHubSDK(viper.GetString("HubSDKPath")); err != nil {
			return nil, err
		}
		hub, err := godaq.NewHub(viper.GetString("HubEndpoint"))
		if err != nil {
			return nil, err
		}
		return godaq.NewArmbandDevice(cfg, hub)
	case "pins":
		board, err := godaq.OpenSerialBoard(viper.GetString("SerialPort"), viper.GetInt("SerialBaud"), cfg.Channels)
		if err != nil {
			return nil, err
		}
		return godaq.NewPinDevice(cfg, board)
	case "tcp":
		return godaq.NewTCPSocketDevice(viper.GetString("SocketAddr"), cfg,
			viper.GetInt("SocketFrameLen"), godaq.Single)
	case "udp":
		return godaq.NewUDPSocketDevice(viper.GetString("SocketAddr"), cfg,
			viper.GetInt("SocketFrameLen"), godaq.Single)
	}
	return nil, fmt.Errorf("unknown device kind %q", opt.device)
}

func main() {
	if err := parseOptions(); err != nil {
		log.Fatal(err)
	}
	if err := setupViper(); err != nil {
		panic(err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	logdir := filepath.Join(home, ".godaq", "logs")
	problemname, err := makeFileExist(logdir, "problems.log")
	if err != nil {
		panic(err)
	}
	godaq.ProblemLogger = startLogger(problemname)

	channels, err := parseChannels(opt.channels)
	if err != nil {
		log.Fatal(err)
	}
	cfg := godaq.Config{Channels: channels, Rate: opt.rate, SamplesPerRead: opt.nsamp}

	device, err := openDevice(cfg)
	if err != nil {
		log.Fatalf("could not open %s device: %v", opt.device, err)
	}

	var writer *blockfile.Writer
	if opt.output != "" {
		if writer, err = blockfile.NewWriter(opt.output, len(channels)); err != nil {
			log.Fatal(err)
		}
	}

	dbabort := make(chan struct{})
	db := daqdb.Dummy()
	if opt.recordDB {
		db = daqdb.Start(dbabort)
	}
	session := &daqdb.SessionMessage{
		ID:             daqdb.NewSessionID(),
		DeviceKind:     opt.device,
		Nchannels:      len(channels),
		Rate:           opt.rate,
		SamplesPerRead: opt.nsamp,
		Start:          time.Now(),
	}
	if host, err := os.Hostname(); err == nil {
		session.Hostname = host
	}

	// Trap interrupts so we can cleanly exit the program.
	interruptCatcher := make(chan os.Signal, 1)
	signal.Notify(interruptCatcher, os.Interrupt)

	blocks := 0
acquisition:
	for opt.nblocks <= 0 || blocks < opt.nblocks {
		select {
		case <-interruptCatcher:
			break acquisition
		default:
		}
		block, err := device.Read()
		if err != nil {
			godaq.ProblemLogger.Printf("read failed after %d blocks: %v", blocks, err)
			log.Printf("read failed after %d blocks: %v", blocks, err)
			session.Aborted = true
			break
		}
		blocks++
		if writer != nil {
			if err := writer.Append(block); err != nil {
				log.Fatal(err)
			}
		}
	}

	if err := device.Stop(); err != nil {
		log.Printf("stop failed: %v", err)
	}
	session.BlocksRead = blocks
	session.End = time.Now()
	db.RecordSession(session)
	close(dbabort)
	db.Wait()

	if writer != nil {
		if err := writer.Close(); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Wrote %d samples/channel on %d channels to %s\n",
			writer.Samples(), len(channels), opt.output)
	}
	fmt.Printf("Acquired %d blocks.\n", blocks)
}
