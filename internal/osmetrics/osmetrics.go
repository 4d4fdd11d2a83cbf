// Package osmetrics produces the host-level metrics record appended to each
// observation. It is a collaborator of the collector core: the core only
// reads the database, and the caller terminates the DB-level record sequence
// with this record.
package osmetrics

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	models "github.com/ovoronin/pgobserve/internal/model"
)

// RecordName is the table name under which the OS record is emitted.
const RecordName = "os_metrics"

// Collect samples host CPU, memory, and load statistics. Sampling failures
// are logged and leave the corresponding fields out rather than failing the
// observation.
func Collect(logger *zap.SugaredLogger) models.TableRecord {
	f := models.NewFields()

	if memory, err := mem.VirtualMemory(); err != nil {
		logger.Errorf("error getting memory stats: %v", err)
	} else {
		f.Set("total_memory", models.Int(int64(memory.Total)))
		f.Set("free_memory", models.Int(int64(memory.Free)))
		f.Set("used_memory_percent", models.Float(memory.UsedPercent))
	}

	if percents, err := cpu.Percent(0, true); err != nil {
		logger.Errorf("error getting cpu info: %v", err)
	} else {
		for i, percent := range percents {
			f.Set(fmt.Sprintf("cpu_utilization_%d", i), models.Float(percent))
		}
	}

	if avg, err := load.Avg(); err != nil {
		logger.Errorf("error getting load average: %v", err)
	} else {
		f.Set("load_average_1m", models.Float(avg.Load1))
		f.Set("load_average_5m", models.Float(avg.Load5))
		f.Set("load_average_15m", models.Float(avg.Load15))
	}

	return models.TableRecord{Table: RecordName, Data: f}
}
