package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/opencmp/cmp-orchestrator/http/controller"
	middlewares "github.com/opencmp/cmp-orchestrator/http/middleware"
)

func SetupRouter(ctrl *controller.Controller) *gin.Engine {
	r := gin.Default()
	middles, err := middlewares.NewMiddlewares(ctrl)
	if err != nil {
		panic(err)
	}

	r.Use(middles.CORSMiddleware)

	apiRoutes := r.Group("/api/v1/cmp")
	{
		apiRoutes.Use(middles.AuthMiddleware)

		projectRoutes := apiRoutes.Group("/projects/:project_id")
		{
			projectRoutes.GET("/resources", ctrl.ListResources)
			projectRoutes.GET("/resources/:name", ctrl.GetResource)
			projectRoutes.DELETE("/resources/:name", ctrl.DeprovisionResource)
			projectRoutes.POST("/resources/:name/start", ctrl.StartResource)
			projectRoutes.POST("/resources/:name/stop", ctrl.StopResource)

			projectRoutes.POST("/ec2", ctrl.CreateEC2)
			projectRoutes.PUT("/ec2/:name", ctrl.UpdateEC2)

			projectRoutes.POST("/azure-vm", ctrl.CreateAzureVM)
			projectRoutes.PUT("/azure-vm/:name", ctrl.UpdateAzureVM)

			projectRoutes.GET("/audit", ctrl.ListAuditEvents)

			projectRoutes.POST("/reconcile", ctrl.TriggerReconcile)
			projectRoutes.POST("/destroy", ctrl.DestroyProject)
		}
	}
	return r
}
