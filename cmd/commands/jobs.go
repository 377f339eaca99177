/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewJobsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the builtin jobs",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range builtinJobNames() {
				bj := builtinJobs[name]
				fmt.Fprintf(cmd.OutOrStdout(), "%-18s %-14s %s\n", name, bj.guarantee, bj.description)
			}
		},
	}
}
