package main

/*
* CLI to control kadomad
 */

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/urfave/cli"

	"github.com/ldotlopez/kadoma/common/ble"
	"github.com/ldotlopez/kadoma/common/config"
	"github.com/ldotlopez/kadoma/common/knob"
	. "github.com/ldotlopez/kadoma/common/protocol"
	. "github.com/ldotlopez/kadoma/common/socket"
	. "github.com/ldotlopez/kadoma/common/util"
	"github.com/ldotlopez/kadoma/common/version"
	"github.com/ldotlopez/kadoma/daemon/client"
	"github.com/ldotlopez/kadoma/daemon/control"
)

func PrintFatal(stderr io.Writer, msg string, args ...interface{}) {
	PrintErr(stderr, msg, args...)
	os.Exit(1)
}

func PrintErr(stderr io.Writer, msg string, args ...interface{}) {
	if len(args) == 0 {
		stderr.Write([]byte(msg + "\n"))
		return
	}
	stderr.Write([]byte(fmt.Sprintf(msg, args...) + "\n"))
}

func printJSON(v interface{}) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	fmt.Println(string(encoded))
}

func argOrFatal(c *cli.Context, i int, name string) string {
	if c.NArg() <= i {
		PrintFatal(os.Stderr, "Missing argument "+Cyan(name)+". Run "+Cyan("kadoma help "+c.Command.Name)+" for usage.")
	}
	return c.Args().Get(i)
}

func statusCommand(c *cli.Context) (err error) {
	status, err := client.RequestStatus(c.Bool("cached"))
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	if c.Bool("json") || c.Bool("copy") {
		encoded, _ := json.MarshalIndent(status, "", "  ")
		if c.Bool("copy") {
			if err = clipboard.WriteAll(string(encoded)); err != nil {
				PrintFatal(os.Stderr, "Could not copy to clipboard: "+err.Error())
			}
			PrintErr(os.Stderr, Green("Status copied to clipboard."))
			return
		}
		fmt.Println(string(encoded))
		return
	}
	fmt.Print(formatStatus(status))
	return
}

func getCommand(c *cli.Context) (err error) {
	name := argOrFatal(c, 0, "KNOB")
	values, err := client.RequestKnob(name)
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	if c.Bool("json") {
		printJSON(values)
		return
	}
	fmt.Print(formatValues(values))
	return
}

func applyOrFatal(settings knob.Settings) knob.Settings {
	applied, err := client.ApplySettings(settings)
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	return applied
}

func parseOnOff(arg string) (on bool, err error) {
	switch strings.ToUpper(arg) {
	case "ON", "1", "TRUE":
		return true, nil
	case "OFF", "0", "FALSE":
		return false, nil
	}
	err = fmt.Errorf("expected ON or OFF, got %q", arg)
	return
}

func setPowerStateCommand(c *cli.Context) (err error) {
	on, err := parseOnOff(argOrFatal(c, 0, "ON|OFF"))
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	applied := applyOrFatal(knob.Settings{PowerState: &on})
	fmt.Println(knob.POWER_STATE+":", onOff(*applied.PowerState))
	return
}

func setOperationModeCommand(c *cli.Context) (err error) {
	mode, err := knob.ParseOperationMode(argOrFatal(c, 0, "MODE"))
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	applied := applyOrFatal(knob.Settings{OperationMode: &mode})
	fmt.Println(knob.OPERATION_MODE+":", applied.OperationMode.String())
	return
}

func setFanSpeedCommand(c *cli.Context) (err error) {
	cooling, err := knob.ParseFanSpeed(argOrFatal(c, 0, "COOLING"))
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	heating := cooling
	if c.NArg() > 1 {
		if heating, err = knob.ParseFanSpeed(c.Args().Get(1)); err != nil {
			PrintFatal(os.Stderr, err.Error())
		}
	}
	applied := applyOrFatal(knob.Settings{FanSpeed: &knob.FanSpeeds{Cooling: cooling, Heating: heating}})
	fmt.Printf("%s: cooling %s, heating %s\n", knob.FAN_SPEED, applied.FanSpeed.Cooling, applied.FanSpeed.Heating)
	return
}

const (
	MIN_SET_POINT = 0
	MAX_SET_POINT = 30
)

func clampSetPoint(degrees int) int {
	if degrees < MIN_SET_POINT {
		return MIN_SET_POINT
	}
	if degrees > MAX_SET_POINT {
		return MAX_SET_POINT
	}
	return degrees
}

func setSetPointCommand(c *cli.Context) (err error) {
	cooling, err := strconv.Atoi(argOrFatal(c, 0, "COOLING"))
	if err != nil {
		PrintFatal(os.Stderr, "COOLING must be an integer temperature")
	}
	heating := cooling
	if c.NArg() > 1 {
		if heating, err = strconv.Atoi(c.Args().Get(1)); err != nil {
			PrintFatal(os.Stderr, "HEATING must be an integer temperature")
		}
	}
	setPoint := knob.SetPoint{Cooling: clampSetPoint(cooling), Heating: clampSetPoint(heating)}
	applied := applyOrFatal(knob.Settings{SetPoint: &setPoint})
	fmt.Printf("%s: cooling %d°C, heating %d°C\n", knob.SET_POINT, applied.SetPoint.Cooling, applied.SetPoint.Heating)
	return
}

func resetCleanFilterTimerCommand(c *cli.Context) (err error) {
	applyOrFatal(knob.Settings{ResetCleanFilterTimer: true})
	fmt.Println(Green("Clean filter timer reset."))
	return
}

func rawCommand(c *cli.Context) (err error) {
	packet := strings.Join(c.Args(), "")
	if packet == "" {
		argOrFatal(c, 0, "PACKET")
	}
	if _, err = ParseHex(packet); err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	response, err := client.SendRaw(control.RawRequest{Packet: packet, Timeout: c.Duration("timeout")})
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	if c.Bool("json") {
		printJSON(response)
		return
	}
	fmt.Println(response.Packet)
	return
}

func infoCommand(c *cli.Context) (err error) {
	info, err := client.RequestInfo()
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	if c.Bool("json") {
		printJSON(info)
		return
	}
	fmt.Print(formatInfo(info))
	return
}

//	monitor prints the daemon's cached status whenever it changes
func monitorCommand(c *cli.Context) (err error) {
	interval := c.Duration("interval")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	var last time.Time
	for {
		status, err := client.RequestStatus(true)
		if err != nil {
			PrintErr(os.Stderr, Red(err.Error()))
		} else if !status.UpdatedAt.Equal(last) {
			last = status.UpdatedAt
			fmt.Print(formatStatus(status))
			fmt.Println()
		}
		select {
		case <-stop:
			return nil
		case <-time.After(interval):
		}
	}
}

func discoverCommand(c *cli.Context) (err error) {
	window := c.Duration("window")
	PrintErr(os.Stderr, "Scanning for %s...", window)
	found, err := ble.Discover(context.Background(), window)
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	if len(found) == 0 {
		PrintFatal(os.Stderr, Yellow("No devices found. Make sure the remote controller is in pairing mode."))
	}
	fmt.Print(formatAdvertisements(found))
	PrintErr(os.Stderr, "\r\nSet "+Cyan("address")+" in ~/.kadoma/config.toml with "+Cyan("kadoma config init --address ADDRESS")+".")
	return
}

func configPathOrFatal() string {
	path, err := KadomaDirFile(config.CONFIG_FILENAME)
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	return path
}

func configInitCommand(c *cli.Context) (err error) {
	path := configPathOrFatal()
	if _, statErr := os.Stat(path); statErr == nil && !c.Bool("force") {
		PrintFatal(os.Stderr, path+" already exists, pass "+Cyan("--force")+" to overwrite it.")
	}
	cfg := config.Default()
	cfg.Address = strings.ToUpper(c.String("address"))
	if err = cfg.Validate(); err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	if err = config.Save(path, cfg); err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	PrintErr(os.Stderr, Green("Wrote "+path))
	if cfg.Address == "" {
		PrintErr(os.Stderr, Yellow(ErrDeviceNotConfigured.Error()))
	}
	return
}

func configShowCommand(c *cli.Context) (err error) {
	cfg, err := config.Load(configPathOrFatal())
	if err != nil {
		PrintFatal(os.Stderr, err.Error())
	}
	printJSON(cfg)
	return
}

func versionCommand(c *cli.Context) (err error) {
	fmt.Println("kadoma", version.CURRENT_VERSION.String())
	daemonVersion, err := client.RequestDaemonVersion()
	if err != nil {
		PrintErr(os.Stderr, Yellow("kadomad not running"))
		return nil
	}
	fmt.Println("kadomad", daemonVersion.String())
	if !version.Compatible(daemonVersion) {
		PrintErr(os.Stderr, client.ErrOldDaemonRunning.Error())
	}
	return
}

var jsonFlag = cli.BoolFlag{
	Name:  "json",
	Usage: "Print JSON instead of text",
}

func main() {
	app := cli.NewApp()
	app.Name = "kadoma"
	app.Usage = "control an air conditioner remote controller through kadomad"
	app.Version = version.CURRENT_VERSION.String()
	app.Flags = []cli.Flag{}
	app.Commands = []cli.Command{
		cli.Command{
			Name:  "status",
			Usage: "Query every setting of the appliance",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "cached",
					Usage: "Print the last status kadomad read instead of querying the appliance",
				},
				cli.BoolFlag{
					Name:  "copy",
					Usage: "Copy the status as JSON to the clipboard",
				},
				jsonFlag,
			},
			Action: statusCommand,
		},
		cli.Command{
			Name:      "get",
			Usage:     "Print the raw field values of one knob",
			ArgsUsage: "KNOB",
			Flags:     []cli.Flag{jsonFlag},
			Action:    getCommand,
		},
		cli.Command{
			Name:      "set-power-state",
			Usage:     "Turn the appliance on or off",
			ArgsUsage: "ON|OFF",
			Action:    setPowerStateCommand,
		},
		cli.Command{
			Name:      "set-operation-mode",
			Usage:     "Set the operation mode (FAN, DRY, AUTO, COOL, HEAT, VENTILATION)",
			ArgsUsage: "MODE",
			Action:    setOperationModeCommand,
		},
		cli.Command{
			Name:      "set-fan-speed",
			Usage:     "Set the fan speed (AUTO, LOW, MID_LOW, MID, MID_HIGH, HIGH)",
			ArgsUsage: "COOLING [HEATING]",
			Action:    setFanSpeedCommand,
		},
		cli.Command{
			Name:      "set-set-point",
			Usage:     "Set the target temperatures in degrees Celsius, clamped to 0..30",
			ArgsUsage: "COOLING [HEATING]",
			Action:    setSetPointCommand,
		},
		cli.Command{
			Name:   "reset-clean-filter-timer",
			Usage:  "Reset the clean filter indicator after cleaning",
			Action: resetCleanFilterTimerCommand,
		},
		cli.Command{
			Name:      "raw",
			Usage:     "Send a raw packet and print the reply",
			ArgsUsage: "PACKET",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "timeout, t",
					Usage: "Reply timeout, the daemon default when unset",
				},
				jsonFlag,
			},
			Action: rawCommand,
		},
		cli.Command{
			Name:   "info",
			Usage:  "Print device and daemon information",
			Flags:  []cli.Flag{jsonFlag},
			Action: infoCommand,
		},
		cli.Command{
			Name:  "monitor",
			Usage: "Print the status every time kadomad refreshes it",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "interval, i",
					Value: 5 * time.Second,
					Usage: "Polling interval",
				},
			},
			Action: monitorCommand,
		},
		cli.Command{
			Name:  "discover",
			Usage: "Scan for nearby BLE devices",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "window, w",
					Value: 10 * time.Second,
					Usage: "Scan duration",
				},
			},
			Action: discoverCommand,
		},
		cli.Command{
			Name:  "config",
			Usage: "Manage ~/.kadoma/config.toml",
			Subcommands: []cli.Command{
				cli.Command{
					Name:  "init",
					Usage: "Write a default configuration",
					Flags: []cli.Flag{
						cli.StringFlag{
							Name:  "address, a",
							Usage: "BLE address of the remote controller",
						},
						cli.BoolFlag{
							Name:  "force",
							Usage: "Overwrite an existing configuration",
						},
					},
					Action: configInitCommand,
				},
				cli.Command{
					Name:   "show",
					Usage:  "Print the effective configuration",
					Action: configShowCommand,
				},
			},
		},
		cli.Command{
			Name:   "version",
			Usage:  "Print the kadoma and kadomad versions",
			Action: versionCommand,
		},
	}
	app.Run(os.Args)
}
