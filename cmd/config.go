// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TheThingsNetwork/iotgrid-bridge/router"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment prefix that is used for configuration
const EnvPrefix = "iotgrid"

var cfgFile string

func initConfig() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("Error when reading config file:", err)
		return
	}
	fmt.Println("Using config file:", viper.ConfigFileUsed())
}

var config = viper.GetViper()

// validateConfig checks the settings that would otherwise only fail once the
// bridge is half started. All problems are reported at once.
func validateConfig(v *viper.Viper) error {
	var errs []error
	switch broker := v.GetString("broker"); broker {
	case "mqtt", "amqp", "dummy":
	default:
		errs = append(errs, fmt.Errorf("unknown broker %q", broker))
	}
	if qos := v.GetInt("mqtt-qos"); qos < 0 || qos > 1 {
		errs = append(errs, fmt.Errorf("mqtt-qos must be 0 or 1, not %d", qos))
	}
	if _, err := router.ParseOverflowPolicy(v.GetString("dispatch-overflow")); err != nil {
		errs = append(errs, err)
	}
	if v.GetInt("max-reconnect-attempts") < 0 {
		errs = append(errs, errors.New("max-reconnect-attempts can not be negative"))
	}
	if v.GetDuration("reconnect-delay") < 0 {
		errs = append(errs, errors.New("reconnect-delay can not be negative"))
	}
	if tenant := v.GetString("default-tenant"); tenant != "" {
		if _, err := uuid.Parse(tenant); err != nil {
			errs = append(errs, fmt.Errorf("invalid default-tenant: %w", err))
		}
	}
	return errors.Join(errs...)
}
