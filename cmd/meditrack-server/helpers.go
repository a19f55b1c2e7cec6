package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/meditrack/meditrack/internal/config"
	"github.com/meditrack/meditrack/internal/domain/scheduling"
	"github.com/meditrack/meditrack/internal/platform/auth"
	"github.com/meditrack/meditrack/internal/platform/db"
)

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		TimeZone:        cfg.Timezone,
		ApplicationName: "meditrack-server",
		PingTimeout:     5 * time.Second,
	}
}

func settingsFromConfig(cfg *config.Config) (scheduling.Settings, error) {
	start, err := scheduling.ParseTimeOfDay(cfg.WorkdayStart)
	if err != nil {
		return scheduling.Settings{}, fmt.Errorf("WORKDAY_START: %w", err)
	}
	end, err := scheduling.ParseTimeOfDay(cfg.WorkdayEnd)
	if err != nil {
		return scheduling.Settings{}, fmt.Errorf("WORKDAY_END: %w", err)
	}
	return scheduling.Settings{
		WorkdayStart:         start,
		WorkdayEnd:           end,
		AppointmentDuration:  cfg.AppointmentDuration,
		MaxDailyAppointments: cfg.MaxDailyAppointments,
	}, nil
}

// parseWeekdays parses "1,2,3". Range checking is left to the allocator,
// which ignores values outside 0..6.
func parseWeekdays(s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("weekday %q is not a number", p)
		}
		out = append(out, n)
	}
	return out, nil
}

// normalizeTimes canonicalizes "HH:MM" or "HH:MM:SS" values to "HH:MM:SS".
func normalizeTimes(in []string) ([]string, error) {
	out := make([]string, len(in))
	for i, s := range in {
		t, err := scheduling.ParseClockTime(s)
		if err != nil {
			return nil, err
		}
		out[i] = t.String()
	}
	return out, nil
}

func principalFor(subject, role string, doctorID, patientID int64) (auth.Principal, error) {
	if subject == "" {
		return auth.Principal{}, fmt.Errorf("--subject is required")
	}
	p := auth.Principal{Subject: subject, Roles: []string{role}}
	switch role {
	case auth.RoleAdmin:
	case auth.RoleDoctor:
		if doctorID <= 0 {
			return auth.Principal{}, fmt.Errorf("--doctor-id is required for role doctor")
		}
		p.DoctorID = doctorID
	case auth.RolePatient:
		if patientID <= 0 {
			return auth.Principal{}, fmt.Errorf("--patient-id is required for role patient")
		}
		p.PatientID = patientID
	default:
		return auth.Principal{}, fmt.Errorf("unknown role %q", role)
	}
	return p, nil
}
