package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agaraleas/RideSync/config"
	"github.com/agaraleas/RideSync/domain"
	"github.com/agaraleas/RideSync/logging"
	"github.com/agaraleas/RideSync/networking"
	"github.com/agaraleas/RideSync/rides"
	"github.com/agaraleas/RideSync/session"
)

func main() {
	os.Exit(int(run(os.Args[1:])))
}

func run(argv []string) ReturnCode {
	cfg, argErr := parseCommandLineArgs(argv)
	if argErr != nil {
		fmt.Println(argErr.msg)
		return argErr.code
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// serve runs a session until ctx is cancelled.
func serve(ctx context.Context, cfg config.AppConfig) ReturnCode {
	logger := logging.ForComponent("ridesync")

	s, err := session.New(cfg)
	if err != nil {
		logger.Errorf("Invalid configuration: %v", err)
		return InvalidConfigError
	}
	defer s.Close()
	s.Synchronizer().Subscribe(eventLogger(logger))

	role, _ := domain.ParseRole(cfg.Session.Role)
	active, err := s.Start(ctx, cfg.Session.UserID, role)
	var cmdErr *rides.CommandError
	switch {
	case errors.As(err, &cmdErr):
		logger.Warnf("Running without ride history: %v", err)
	case err != nil:
		logger.Errorf("Failed to connect: %v", err)
		return ConnectError
	default:
		logger.Infof("Tracking %d active rides", len(active))
	}

	<-ctx.Done()
	logger.Info("Shutting down")
	return NormalExit
}

func eventLogger(logger logging.AbstractLogger) rides.ListenerFuncs {
	return rides.ListenerFuncs{
		RideRequested: func(ride domain.Ride) {
			logger.Infof("Ride %s requested from '%s' to '%s'", ride.ID, ride.Pickup.Address, ride.Dropoff.Address)
		},
		RideStatusChanged: func(ride domain.Ride) {
			logger.Infof("Ride %s is now %s", ride.ID, ride.Status)
		},
		RideAccepted: func(ride domain.Ride) {
			logger.Infof("Ride %s accepted by driver %s", ride.ID, ride.DriverID)
		},
		RideCancelled: func(rideID domain.ID) {
			logger.Infof("Ride %s cancelled", rideID)
		},
		DriverLocationUpdated: func(ride domain.Ride, location domain.Location) {
			logger.Debugf("Driver %s of ride %s at %.5f,%.5f", ride.DriverID, ride.ID, location.Latitude, location.Longitude)
		},
		ChatMessage: func(message domain.ChatMessage) {
			logger.Infof("[%s] %s: %s", message.RideID, message.SenderID, message.Message)
		},
		ConnectionState: func(state networking.ConnectionState) {
			logger.Infof("Connection %s", state)
		},
	}
}
