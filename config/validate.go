// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/robfig/cron/v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints. All violations are reported at once.
func (config *Config) Validate() error {
	if err := validateStruct(config); err != nil {
		return errors.Trace(err)
	}
	if config.Master.RecomputeSchedule != "" {
		if _, err := cron.ParseStandard(config.Master.RecomputeSchedule); err != nil {
			return errors.NewNotValid(err, "recompute schedule")
		}
	}
	if _, err := time.LoadLocation(config.Master.Timezone); err != nil {
		return errors.NewNotValid(err, "timezone")
	}
	return nil
}

// Validate checks the algorithm parameters only.
func (config *ItemCFConfig) Validate() error {
	return validateStruct(config)
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return errors.Trace(err)
		}
		messages := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			messages = append(messages, fmt.Sprintf("value of `%s` must satisfy `%s`, but the current value is %v",
				fieldError.Namespace(), fieldError.Tag(), fieldError.Value()))
		}
		return errors.NotValidf("config (%s)", strings.Join(messages, "; "))
	}
	return nil
}
