//
// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package tools

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/rappor/go/decode"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// drawChart saves a PNG bar chart of the decoded proportions.
func drawChart(ctx context.Context, fit []decode.Frequency, output string) error {
	p := plot.New()
	p.Title.Text = "Decoded Frequencies"
	p.X.Label.Text = "Candidate"
	p.Y.Label.Text = "Proportion"

	values := make(plotter.Values, len(fit))
	names := make([]string, len(fit))
	for i, f := range fit {
		values[i] = f.Proportion
		names[i] = f.Candidate
	}
	if len(values) > 0 {
		bars, err := plotter.NewBarChart(values, vg.Points(20))
		if err != nil {
			return fmt.Errorf("could not create bars from points %v: %v", values, err)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(0)
		p.Add(bars)
		p.NominalX(names...)
	}

	w, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("could not render plot: %v", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return fmt.Errorf("could not render plot: %v", err)
	}
	return WriteBytes(ctx, buf.Bytes(), output)
}
