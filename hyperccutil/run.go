/*
Copyright © 2022 the hypercc authors.
This file is part of hypercc.

hypercc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

hypercc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with hypercc.  If not, see <http://www.gnu.org/licenses/>.
*/

package hyperccutil

import (
	"fmt"
	"os"

	hypercc "github.com/TerpstraS/hyper-notebooks"
	"github.com/TerpstraS/hyper-notebooks/internal/hash"
	"github.com/sirupsen/logrus"
)

// loadField reads the variable of s from the NetCDF file at path and
// selects the time steps of s.Month.
func loadField(path string, s *Settings) (*hypercc.Grid, *hypercc.Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("hypercc: opening input file: %v", err)
	}
	defer f.Close()
	g, d, err := hypercc.LoadNetCDF(f, s.Variable)
	if err != nil {
		return nil, nil, fmt.Errorf("hypercc: reading %s: %w", path, err)
	}
	if s.Month == 0 {
		return g, d, nil
	}
	return hypercc.SelectMonth(g, d, s.Month)
}

// Calibrate computes the gradient distribution of the control run in
// s.ControlFile and writes it to s.CalibrationFile.
func Calibrate(s *Settings, log logrus.FieldLogger) (*hypercc.Calibration, error) {
	if err := checkInputFile("ControlFile", s.ControlFile); err != nil {
		return nil, err
	}
	if err := checkOutputFile("CalibrationFile", s.CalibrationFile); err != nil {
		return nil, err
	}
	c, err := calibrate(s, log)
	if err != nil {
		return nil, err
	}
	if err := writeCalibration(s.CalibrationFile, c); err != nil {
		return nil, err
	}
	log.WithField("file", s.CalibrationFile).Info("hypercc: calibration saved")
	return c, nil
}

func calibrate(s *Settings, log logrus.FieldLogger) (*hypercc.Calibration, error) {
	log.WithField("file", s.ControlFile).Info("hypercc: loading control run")
	g, f, err := loadField(s.ControlFile, s)
	if err != nil {
		return nil, err
	}
	smoothed, err := hypercc.SmoothControl(s.Detector, g, f)
	if err != nil {
		return nil, err
	}
	c, err := hypercc.Calibrate(s.Detector.CalibrationQuartile, g, smoothed, s.DeltaT, s.DeltaD)
	if err != nil {
		return nil, err
	}
	upper, lower := c.Thresholds(s.DeltaT)
	log.WithFields(logrus.Fields{
		"quartile":       c.Quartile,
		"time gradient":  c.Time[c.Quartile],
		"space gradient": c.Distance[c.Quartile],
		"gamma":          c.ScalingFactor(),
		"upper":          upper,
		"lower":          lower,
	}).Info("hypercc: calibrated")
	return c, nil
}

func writeCalibration(path string, c *hypercc.Calibration) error {
	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("hypercc: creating calibration file: %v", err)
	}
	if err := hypercc.WriteCalibration(w, c); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func readCalibration(path string) (*hypercc.Calibration, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hypercc: opening calibration file: %v", err)
	}
	defer r.Close()
	return hypercc.ReadCalibration(r)
}

// DetectorConfig returns the detector configuration of s. The Sobel
// weights and hysteresis thresholds are calibrated on the control run if
// s.ControlFile is set, read from s.CalibrationFile if that is set, and
// otherwise taken from s as they are.
func DetectorConfig(s *Settings, log logrus.FieldLogger) (hypercc.Config, error) {
	switch {
	case s.ControlFile != "":
		c, err := calibrate(s, log)
		if err != nil {
			return s.Detector, err
		}
		if s.CalibrationFile != "" {
			if err := writeCalibration(s.CalibrationFile, c); err != nil {
				return s.Detector, err
			}
		}
		return c.Apply(s.Detector, s.DeltaT), nil
	case s.CalibrationFile != "":
		c, err := readCalibration(s.CalibrationFile)
		if err != nil {
			return s.Detector, err
		}
		return c.Apply(s.Detector, s.DeltaT), nil
	default:
		log.WithFields(logrus.Fields{
			"upper": s.Detector.HysteresisUpper,
			"lower": s.Detector.HysteresisLower,
		}).Warn("hypercc: no control run or calibration file; thresholds are not calibrated")
		cfg := s.Detector
		cfg.SobelWeights[0] = s.DeltaT.Clone()
		cfg.SobelWeights[1] = s.DeltaD.Clone()
		cfg.SobelWeights[2] = s.DeltaD.Clone()
		return cfg, nil
	}
}

// Detect runs the edge detector on s.InputFile and writes the results to
// s.OutputFile.
func Detect(s *Settings, log logrus.FieldLogger) (*hypercc.Result, error) {
	if err := checkInputFile("InputFile", s.InputFile); err != nil {
		return nil, err
	}
	if err := checkOutputFile("OutputFile", s.OutputFile); err != nil {
		return nil, err
	}
	cfg, err := DetectorConfig(s, log)
	if err != nil {
		return nil, err
	}
	d, err := hypercc.NewDetector(cfg, nil, log)
	if err != nil {
		return nil, err
	}

	log.WithField("file", s.InputFile).Info("hypercc: loading input")
	g, f, err := loadField(s.InputFile, s)
	if err != nil {
		return nil, err
	}
	r, err := d.Run(g, f)
	if err != nil {
		return nil, err
	}

	w, err := os.Create(s.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("hypercc: creating output file: %v", err)
	}
	attrs := map[string]string{
		"config_key": hash.Key(cfg),
		"source":     s.InputFile,
		"variable":   s.Variable.Name,
	}
	if err := hypercc.WriteNetCDF(w, g, r, attrs); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	log.WithField("file", s.OutputFile).Info("hypercc: results saved")
	return r, nil
}

// Select writes the time steps of s.Month of the variable in s.InputFile
// to s.OutputFile.
func Select(s *Settings, log logrus.FieldLogger) error {
	if err := checkInputFile("InputFile", s.InputFile); err != nil {
		return err
	}
	if err := checkOutputFile("OutputFile", s.OutputFile); err != nil {
		return err
	}
	g, f, err := loadField(s.InputFile, s)
	if err != nil {
		return err
	}
	w, err := os.Create(s.OutputFile)
	if err != nil {
		return fmt.Errorf("hypercc: creating output file: %v", err)
	}
	if err := hypercc.WriteField(w, g, f, s.Variable); err != nil {
		w.Close()
		return err
	}
	log.WithFields(logrus.Fields{
		"file":       s.OutputFile,
		"time steps": len(g.Dates),
	}).Info("hypercc: selection saved")
	return w.Close()
}
