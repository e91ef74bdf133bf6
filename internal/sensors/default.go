package sensors

// DefaultRegistry builds a Registry with all twelve catalog sensors
// registered. neuralClient may be nil, in which case the neural detector
// always fails open.
func DefaultRegistry(neuralClient ExternalClassifier) *Registry {
	r := NewRegistry()

	r.Register(NewBreathSensor())
	r.Register(NewPitchVelocitySensor())
	r.Register(NewGlottalInertiaSensor())
	r.Register(NewGlobalFormantSensor())
	r.Register(NewFormantTrajectorySensor())
	r.Register(NewPhaseCoherenceSensor())
	r.Register(NewProsodicContinuitySensor())
	r.Register(NewBreathingPatternSensor())
	r.Register(NewDigitalSilenceSensor())
	r.Register(NewDynamicRangeSensor())
	r.Register(NewBandwidthSensor())
	r.Register(NewNeuralDetectorSensor(neuralClient))

	return r
}
