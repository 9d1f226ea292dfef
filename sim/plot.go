package sim

import (
	"fmt"
	"image/color"

	"github.com/milosgajdos/go-slam/geom"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewTrajectoryPlot creates new plot of a simulation run from the four data sources:
// truth:     true robot poses
// estimate:  estimated robot poses
// landmarks: true landmark positions
// mapped:    estimated landmark positions
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * truth or estimate poses are empty
// * gonum plot fails to be created
func NewTrajectoryPlot(truth, estimate []geom.Pose2, landmarks, mapped []geom.Point2) (*plot.Plot, error) {
	if len(truth) == 0 || len(estimate) == 0 {
		return nil, fmt.Errorf("invalid data supplied")
	}

	p := plot.New()

	p.Title.Text = "SLAM"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	// Make a line plotter for true trajectory
	truthLine, err := plotter.NewLine(posePoints(truth))
	if err != nil {
		return nil, err
	}
	truthLine.LineStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	truthLine.LineStyle.Width = vg.Points(1)

	p.Add(truthLine)
	p.Legend.Add("truth", truthLine)

	// Make a line plotter with points for estimated trajectory
	estLine, estPoints, err := plotter.NewLinePoints(posePoints(estimate))
	if err != nil {
		return nil, err
	}
	estLine.LineStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
	estLine.LineStyle.Dashes = []vg.Length{vg.Points(3), vg.Points(2)}
	estPoints.Shape = draw.CrossGlyph{}
	estPoints.GlyphStyle.Radius = vg.Points(2)

	p.Add(estLine, estPoints)
	p.Legend.Add("estimate", estLine, estPoints)

	// Make a scatter plotter for true landmarks
	if len(landmarks) > 0 {
		lmScatter, err := plotter.NewScatter(pointPoints(landmarks))
		if err != nil {
			return nil, err
		}
		lmScatter.GlyphStyle.Color = color.RGBA{G: 128, A: 255}
		lmScatter.Shape = draw.PyramidGlyph{}
		lmScatter.GlyphStyle.Radius = vg.Points(4)

		p.Add(lmScatter)
		p.Legend.Add("landmarks", lmScatter)
	}

	// Make a scatter plotter for mapped landmarks
	if len(mapped) > 0 {
		mapScatter, err := plotter.NewScatter(pointPoints(mapped))
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %v", err)
		}
		mapScatter.GlyphStyle.Color = color.RGBA{G: 255, A: 128}
		mapScatter.GlyphStyle.Radius = vg.Points(2)

		p.Add(mapScatter)
		p.Legend.Add("mapped", mapScatter)
	}

	return p, nil
}

func posePoints(poses []geom.Pose2) plotter.XYs {
	pts := make(plotter.XYs, len(poses))
	for i, p := range poses {
		pts[i].X = p.X
		pts[i].Y = p.Y
	}

	return pts
}

func pointPoints(points []geom.Point2) plotter.XYs {
	pts := make(plotter.XYs, len(points))
	for i, p := range points {
		pts[i].X = p.X
		pts[i].Y = p.Y
	}

	return pts
}
