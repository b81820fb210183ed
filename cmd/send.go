package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/robofleet/config"
	"github.com/kilianp07/robofleet/core/model"
	coremqtt "github.com/kilianp07/robofleet/core/mqtt"
	"github.com/kilianp07/robofleet/infra/mqtt"
)

var (
	sendRobot    int
	sendTarget   int
	sendPriority float64
)

var sendCmd = &cobra.Command{
	Use:   "send <action>",
	Short: "Send a command to a running fleet over MQTT",
	Long: "Actions: assign, enqueue, charge, toggle_stop, stop_all, resume_all, " +
		"random_tasks, optimize.",
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().IntVarP(&sendRobot, "robot", "r", -1, "robot id")
	sendCmd.Flags().IntVarP(&sendTarget, "target", "t", -1, "target vertex")
	sendCmd.Flags().Float64VarP(&sendPriority, "priority", "p", 0, "task priority")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	mqttCfg := cfg.MQTT
	suffix := time.Now().UnixNano()
	if mqttCfg.ClientID != "" {
		mqttCfg.ClientID = fmt.Sprintf("%s-send-%d", mqttCfg.ClientID, suffix)
	} else {
		mqttCfg.ClientID = fmt.Sprintf("robofleet-send-%d", suffix)
	}
	sender, err := mqtt.NewCommandSender(mqttCfg)
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	defer sender.Close()

	c := coremqtt.Command{Action: args[0], Target: model.VertexID(sendTarget), Priority: sendPriority}
	if sendRobot >= 0 {
		id := model.RobotID(sendRobot)
		c.Robot = &id
	}
	id, err := sender.Send(c)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
	return err
}
