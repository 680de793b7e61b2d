package driver

import (
  "github.com/prometheus/client_golang/prometheus"
)

var (
  measurementsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "scale_bridge_driver_measurements_total",
    Help: "Measurements decoded by a driver.",
  }, []string{"driver"})
  droppedFramesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "scale_bridge_driver_dropped_frames_total",
    Help: "Frames dropped because they could not be decoded.",
  }, []string{"driver"})
  idleTimeoutsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scale_bridge_driver_idle_timeouts_total",
    Help: "Sessions closed by the idle watchdog.",
  })
  panicsCounter = prometheus.NewCounter(prometheus.CounterOpts{
    Name: "scale_bridge_driver_handler_panics_total",
    Help: "Event handlers that panicked.",
  })
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    measurementsCounter,
    droppedFramesCounter,
    idleTimeoutsCounter,
    panicsCounter,
  )
}
