package autotrack

import (
	"fieldcast/internal/ipc"
	"fieldcast/internal/motion"
)

// hdopToAccuracyM converts HDOP into a rough horizontal error estimate.
// HDOP scales the receiver's user-equivalent range error, commonly taken as
// ~5 m for consumer modules.
const hdopToAccuracyM = 5.0

// defaultAccuracyM is assumed when the daemon reports no HDOP.
const defaultAccuracyM = 10.0

// ClientSource adapts the daemon IPC client to the motion.Source interface.
type ClientSource struct {
	Client *ipc.Client
}

func (s *ClientSource) Position() (motion.Position, error) {
	resp, err := s.Client.Location()
	if err != nil {
		return motion.Position{}, err
	}

	acc := defaultAccuracyM
	if resp.HDOP != nil && *resp.HDOP > 0 {
		acc = *resp.HDOP * hdopToAccuracyM
	}
	return motion.Position{
		Lat:       resp.Latitude,
		Lon:       resp.Longitude,
		AccuracyM: acc,
	}, nil
}
