package web

import (
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/guard.go/pkg/state"
)

var statusPageTemplate = template.Must(template.New("status").Parse(`<html>
<head><title>Robot Car Guard</title>
<script>function refreshImage() {
var img = document.getElementById('cameraImage');
img.src = '/camera?' + new Date().getTime();
}
setInterval(refreshImage, 1000);</script></head>
<body><h1>Robot Car Guard</h1>
<p>Current Mode: {{.Mode.Title}}</p>
<p><button onclick="location.href='/mode/toy'">Toy/Map Mode</button><button onclick="location.href='/mode/guard'">Guard Mode</button></p>
<p>Motor Battery Voltage: {{printf "%.2f" .Battery.MotorVoltage}} V</p>
<p>Compute Battery Voltage: {{printf "%.2f" .Battery.ComputeVoltage}} V</p>
<p><img id="cameraImage" src="/camera" width="320" height="240"></p>
{{- if .LowBattery}}
<p style="color:red">Battery Voltage Low!</p>
{{- end}}
</body></html>
`))

func renderStatusPage(w io.Writer, snapshot state.Snapshot) error {
	return statusPageTemplate.Execute(w, snapshot)
}

// StatusView is the JSON form of the robot status.
type StatusView struct {
	Mode           state.Mode `json:"mode"`
	MotorVoltage   float64    `json:"motorVoltage"`
	ComputeVoltage float64    `json:"computeVoltage"`
	LowBattery     bool       `json:"lowBattery"`
	SerialReady    bool       `json:"serialReady"`
	NetworkReady   bool       `json:"networkReady"`
	FramePresent   bool       `json:"framePresent"`
	FrameSize      int        `json:"frameSize"`
	FrameSeq       uint64     `json:"frameSeq"`
	LastUpdated    *time.Time `json:"lastUpdated,omitempty"`
}

func newStatusView(s state.Snapshot) StatusView {
	v := StatusView{
		Mode:           s.Mode,
		MotorVoltage:   s.Battery.MotorVoltage,
		ComputeVoltage: s.Battery.ComputeVoltage,
		LowBattery:     s.LowBattery(),
		SerialReady:    s.SerialReady,
		NetworkReady:   s.NetworkReady,
		FramePresent:   s.Frame.Present,
		FrameSize:      len(s.Frame.Payload),
		FrameSeq:       s.Frame.Seq,
	}
	if s.Battery.Reported() {
		at := s.Battery.LastUpdated
		v.LastUpdated = &at
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("http: encode json: %v", err)
	}
}
