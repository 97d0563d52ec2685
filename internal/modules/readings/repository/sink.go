package repository

import (
	"context"

	"rpi-weatherstation/internal/readings"
)

// Sink stores sampled readings. It satisfies sampler.Sink.
type Sink struct {
	Repo ReadingsRepository
}

func (s Sink) WriteBME280(ctx context.Context, r readings.BME280Reading) error {
	return s.Repo.InsertBME280(ctx, r)
}

func (s Sink) WriteVEML7700(ctx context.Context, r readings.VEML7700Reading) error {
	return s.Repo.InsertVEML7700(ctx, r)
}

func (s Sink) WriteSGP40(ctx context.Context, r readings.SGP40Reading) error {
	return s.Repo.InsertSGP40(ctx, r)
}
