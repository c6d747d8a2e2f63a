/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gotsunami/InputParameters"
	"github.com/notargets/gotsunami/device"
	"github.com/notargets/gotsunami/node"
	"github.com/notargets/gotsunami/scenario"
	"github.com/notargets/gotsunami/utils"
)

type ModelRun struct {
	ICFile          string
	Backend         string
	Timings         bool
	KernelProfiling bool
	HWCounters      bool
	Profile         string
}

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Propagate a tsunami across a flat basin",
	Long: `
Reads a YAML run description, pushes the basin to the selected device and
steps it, sampling points of interest along the way.

gotsunami run -I basin.yaml --backend host --timings`,
	Run: func(cmd *cobra.Command, args []string) {
		mr := &ModelRun{}
		mr.ICFile, _ = cmd.Flags().GetString("inputConditionsFile")
		mr.Backend = viper.GetString("backend")
		mr.Timings = viper.GetBool("timings")
		mr.KernelProfiling, _ = cmd.Flags().GetBool("kernelProfiling")
		mr.HWCounters, _ = cmd.Flags().GetBool("hwCounters")
		mr.Profile, _ = cmd.Flags().GetString("profile")
		ip := processInput(mr)
		if err := Run(mr, ip, os.Stdout); err != nil {
			if device.IsFatal(err) {
				fmt.Fprintf(os.Stderr, "fatal device error: %v\n", err)
			} else {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			os.Exit(1)
		}
	},
}

const exampleFile = `
########################################
Title: "Flat basin"
NRows: 400
NCols: 600
Dx: 2000.
Depth: 4000.
Steps: 1000
Source:
  Row: 200
  Col: 300
  Amplitude: 2.
  Radius: 5.
POIs:
  - Name: buoy
    Row: 200
    Col: 450
########################################
`

func processInput(mr *ModelRun) (ip *InputParameters.Parameters) {
	var (
		err  error
		data []byte
	)
	if len(mr.ICFile) == 0 {
		fmt.Printf("error: must supply an input parameters file (-I, --inputConditionsFile)\n")
		fmt.Printf("Example File:%s\n", exampleFile)
		os.Exit(1)
	}
	if data, err = os.ReadFile(mr.ICFile); err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
	ip = &InputParameters.Parameters{}
	if err = ip.Parse(data); err != nil {
		fmt.Printf("error: parsing %s: %s\n", mr.ICFile, err)
		os.Exit(1)
	}
	return
}

func init() {
	rootCmd.AddCommand(RunCmd)
	RunCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- NRows, NCols\n\t- Source")
	RunCmd.Flags().StringP("backend", "b", device.BackendHost, "device backend, host or opencl")
	RunCmd.Flags().BoolP("timings", "t", false, "report phase timings")
	RunCmd.Flags().Bool("kernelProfiling", false, "time every kernel, synchronizing after each launch")
	RunCmd.Flags().Bool("hwCounters", false, "count CPU instructions in the compute phase (Linux)")
	RunCmd.Flags().String("profile", "", "write a pprof profile, cpu or mem")
	_ = viper.BindPFlag("backend", RunCmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag("timings", RunCmd.Flags().Lookup("timings"))
}

var openDevice = device.Open

// Run validates the parameters, builds the basin and steps it to completion.
// Results are written to w.
func Run(mr *ModelRun, ip *InputParameters.Parameters, w io.Writer) (err error) {
	if err = ip.Validate(); err != nil {
		return
	}
	switch mr.Profile {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet).Stop()
	default:
		return fmt.Errorf("unrecognized profile %q, want cpu or mem", mr.Profile)
	}
	ip.Print()

	var (
		dev    device.Device
		n      *node.Node
		timers = node.NewTimers(node.TimerConfig{
			Enabled:          mr.Timings || mr.KernelProfiling || mr.HWCounters,
			KernelProfiling:  mr.KernelProfiling,
			HardwareCounters: mr.HWCounters,
		})
	)
	if dev, err = openDevice(mr.Backend); err != nil {
		return
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if n, err = node.NewNode(dev, ip.NodeConfig(), timers); err != nil {
		return
	}
	if err = n.Allocate(); err != nil {
		if ferr := n.Free(); ferr != nil && !errors.Is(ferr, node.ErrNotAllocated) {
			utils.Logger().Warn("releasing partial allocation", "err", ferr)
		}
		return
	}
	freed := false
	defer func() {
		if freed {
			return
		}
		if ferr := n.Free(); ferr != nil && err == nil {
			err = ferr
		}
	}()
	if err = n.CopyToDevice(scenario.NewFlatBasin(ip)); err != nil {
		return
	}

	var (
		poiIdx = ip.POIIndices()
		start  = time.Now()
	)
	err = n.Run(ip.Steps, ip, func(step int) error {
		if len(poiIdx) == 0 || step%ip.POIInterval != 0 {
			return nil
		}
		vals, err := n.CopyPOIs(poiIdx)
		if err != nil {
			return err
		}
		for k, p := range ip.POIs {
			fmt.Fprintf(w, "POI %-12s t=%9.2f h=%10.6f\n", p.Name, float64(step)*ip.Dt, vals[k])
		}
		return nil
	})
	if err != nil {
		return
	}
	if err = n.CopyFromDevice(); err != nil {
		return
	}
	if _, err = n.CurrentHeight(); err != nil {
		return
	}
	if utils.IsNan(n.Height()) {
		return fmt.Errorf("solution diverged after %d steps", ip.Steps)
	}
	fmt.Fprintf(w, "%d steps in %s, final region %s\n", ip.Steps, time.Since(start), n.Region())
	fmt.Fprintf(w, "%s\n", node.Summarize(n.MaxHeight(), n.ArrivalTimes()))
	utils.Logger().Info("Host memory", "usage", utils.GetMemUsage())
	freed = true
	if err = n.Free(); err != nil {
		return
	}
	timers.Report(utils.Logger())
	return nil
}
